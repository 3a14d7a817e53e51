// Package promo manages the promo-code pool and schedules codes for
// distribution over a time window.
package promo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/settings"
	"github.com/example/dropsched/internal/slots"
)

const metaMinMessages = "min_messages"

// CodeStatus is a code joined with its schedule entry, if any.
type CodeStatus struct {
	Code        string
	CreatedAt   time.Time
	PlanID      *string
	EntryID     *int64
	ScheduledAt *time.Time
	MinMessages int
	Claimed     bool
	ClaimedBy   *int64
	ClaimedAt   *time.Time
	Delivered   bool
}

type Store interface {
	// InsertCodes ignores codes that already exist and returns how many were new.
	InsertCodes(ctx context.Context, codes []string, at time.Time) (int, error)
	// AvailableCodes returns codes not present in any promo entry, oldest first.
	AvailableCodes(ctx context.Context) ([]string, error)
	ListCodes(ctx context.Context) ([]CodeStatus, error)
	DeleteCodes(ctx context.Context) error
}

type ScheduleRequest struct {
	Hours float64
	// Count limits how many available codes are scheduled; 0 means all.
	Count int
	// OnePerUser nil falls back to the promo_one_per_user setting.
	OnePerUser  *bool
	MinMessages int
	Start       time.Time
}

type Service struct {
	store    Store
	plans    *plans.Service
	settings *settings.Service
	// scope applied when one-per-user is on.
	scope  plans.ClaimScope
	logger zerolog.Logger
}

func NewService(store Store, p *plans.Service, st *settings.Service, scope plans.ClaimScope, logger zerolog.Logger) *Service {
	if scope == "" || scope == plans.ScopeNone {
		scope = plans.ScopeFamily
	}
	return &Service{store: store, plans: p, settings: st, scope: scope, logger: logger.With().Str("component", "promo").Logger()}
}

// Upload adds codes to the pool. Blank lines are dropped and duplicates ignored.
func (s *Service) Upload(ctx context.Context, codes []string) (int, error) {
	cleaned := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cleaned = append(cleaned, c)
	}
	if len(cleaned) == 0 {
		return 0, fmt.Errorf("%w: codes array is required", internaltypes.ErrInvalidArgument)
	}
	n, err := s.store.InsertCodes(ctx, cleaned, s.plans.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("insert codes: %w", err)
	}
	s.logger.Info().Int("submitted", len(cleaned)).Int("inserted", n).Msg("codes uploaded")
	return n, nil
}

func (s *Service) List(ctx context.Context) ([]CodeStatus, error) {
	return s.store.ListCodes(ctx)
}

// Schedule distributes unused codes over req.Hours hours.
func (s *Service) Schedule(ctx context.Context, req ScheduleRequest) (plans.Plan, []plans.Entry, error) {
	if _, err := slots.HoursToSeconds(req.Hours); err != nil {
		return plans.Plan{}, nil, err
	}
	if req.Count < 0 || req.MinMessages < 0 {
		return plans.Plan{}, nil, fmt.Errorf("%w: count and min messages must not be negative", internaltypes.ErrInvalidArgument)
	}

	codes, err := s.store.AvailableCodes(ctx)
	if err != nil {
		return plans.Plan{}, nil, fmt.Errorf("load available codes: %w", err)
	}
	if len(codes) == 0 {
		return plans.Plan{}, nil, fmt.Errorf("%w: no unused codes available", internaltypes.ErrEmptyPool)
	}
	if req.Count > 0 {
		if req.Count > len(codes) {
			return plans.Plan{}, nil, fmt.Errorf("%w: only %d unused codes available", internaltypes.ErrInvalidArgument, len(codes))
		}
		codes = codes[:req.Count]
	}

	onePerUser, err := s.onePerUser(ctx, req.OnePerUser)
	if err != nil {
		return plans.Plan{}, nil, err
	}
	scope := plans.ScopeNone
	if onePerUser {
		scope = s.scope
	}

	p, entries, err := s.plans.CreatePlan(ctx, plans.CreateRequest{
		Family:      plans.FamilyPromo,
		Label:       fmt.Sprintf("%d codes over %v hours", len(codes), req.Hours),
		Items:       codes,
		WindowHours: req.Hours,
		Start:       req.Start,
		Scope:       scope,
		Meta:        map[string]string{metaMinMessages: strconv.Itoa(req.MinMessages)},
	})
	if err != nil {
		return plans.Plan{}, nil, err
	}

	if req.OnePerUser != nil {
		if err := s.settings.Set(ctx, settings.KeyPromoOnePerUser, strconv.FormatBool(*req.OnePerUser)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to persist one-per-user setting")
		}
	}
	return p, entries, nil
}

// Reset deletes every promo plan and the whole code pool.
func (s *Service) Reset(ctx context.Context) error {
	if _, err := s.plans.ResetFamily(ctx, plans.FamilyPromo); err != nil {
		return err
	}
	if err := s.store.DeleteCodes(ctx); err != nil {
		return fmt.Errorf("delete codes: %w", err)
	}
	s.logger.Warn().Msg("promo codes and schedules reset")
	return nil
}

func (s *Service) onePerUser(ctx context.Context, v *bool) (bool, error) {
	if v != nil {
		return *v, nil
	}
	return s.settings.Bool(ctx, settings.KeyPromoOnePerUser, true)
}

// MinMessages reads the min_messages value stored on a promo plan.
func MinMessages(p plans.Plan) int {
	n, _ := strconv.Atoi(p.Meta[metaMinMessages])
	return n
}
