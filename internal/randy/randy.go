// Package randy runs "Randy" prize draws: a number of winner tickets are
// spread over a distribution window and handed to community members as the
// bot claims them.
package randy

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

// Message periods a member's activity is counted over.
const (
	PeriodNone  = "none"
	PeriodDay   = "day"
	PeriodWeek  = "week"
	PeriodMonth = "month"
	PeriodAll   = "all"
)

const (
	metaPrize        = "prize_text"
	metaMinMessages  = "min_messages"
	metaPeriod       = "message_period"
	metaAnnouncement = "send_announcement"
	metaPin          = "pin_message"
	metaWinners      = "winner_count"
	metaHours        = "distribution_hours"
)

type CreateRequest struct {
	WinnerCount       int
	DistributionHours float64
	PrizeText         string
	MinMessages       int
	MessagePeriod     string
	// nil means true for the three flags below.
	SendAnnouncement *bool
	PinMessage       *bool
	OnePerUser       *bool
	StartTime        time.Time
}

type Draw struct {
	ID                string
	WinnerCount       int
	DistributionHours float64
	PrizeText         string
	MinMessages       int
	MessagePeriod     string
	SendAnnouncement  bool
	PinMessage        bool
	OnePerUser        bool
	StartTime         time.Time
	CreatedAt         time.Time

	TotalSlots    int
	AssignedSlots int
	Delivered     int
}

type Service struct {
	plans  *plans.Service
	scope  plans.ClaimScope
	logger zerolog.Logger
}

// NewService returns a draw service; scope is applied to draws created with
// one-per-user enabled.
func NewService(p *plans.Service, scope plans.ClaimScope, logger zerolog.Logger) *Service {
	if scope == "" || scope == plans.ScopeNone {
		scope = plans.ScopePlan
	}
	return &Service{plans: p, scope: scope, logger: logger.With().Str("component", "randy").Logger()}
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (Draw, error) {
	if req.WinnerCount < 1 || req.DistributionHours <= 0 || strings.TrimSpace(req.PrizeText) == "" || req.StartTime.IsZero() {
		return Draw{}, fmt.Errorf("%w: missing required fields", internaltypes.ErrInvalidArgument)
	}
	if req.MinMessages < 0 {
		return Draw{}, fmt.Errorf("%w: min messages must not be negative", internaltypes.ErrInvalidArgument)
	}
	period, err := parsePeriod(req.MessagePeriod)
	if err != nil {
		return Draw{}, err
	}

	onePerUser := boolOr(req.OnePerUser, true)
	scope := plans.ScopeNone
	if onePerUser {
		scope = s.scope
	}

	tickets := make([]string, req.WinnerCount)
	for i := range tickets {
		tickets[i] = "ticket-" + uuid.NewString()
	}

	p, entries, err := s.plans.CreatePlan(ctx, plans.CreateRequest{
		Family:      plans.FamilyRandy,
		Label:       strings.TrimSpace(req.PrizeText),
		Items:       tickets,
		WindowHours: req.DistributionHours,
		Start:       req.StartTime,
		Scope:       scope,
		Meta: map[string]string{
			metaPrize:        strings.TrimSpace(req.PrizeText),
			metaMinMessages:  strconv.Itoa(req.MinMessages),
			metaPeriod:       period,
			metaAnnouncement: strconv.FormatBool(boolOr(req.SendAnnouncement, true)),
			metaPin:          strconv.FormatBool(boolOr(req.PinMessage, true)),
			metaWinners:      strconv.Itoa(req.WinnerCount),
			metaHours:        strconv.FormatFloat(req.DistributionHours, 'f', -1, 64),
		},
	})
	if err != nil {
		return Draw{}, err
	}
	s.logger.Info().Str("draw_id", p.ID).Int("winners", req.WinnerCount).Msg("randy draw created")

	d := fromPlan(p)
	d.TotalSlots = len(entries)
	return d, nil
}

func (s *Service) List(ctx context.Context) ([]Draw, error) {
	sums, err := s.plans.ListPlans(ctx, plans.FamilyRandy)
	if err != nil {
		return nil, err
	}
	out := make([]Draw, 0, len(sums))
	for _, sum := range sums {
		d := fromPlan(sum.Plan)
		d.TotalSlots = sum.Total
		d.AssignedSlots = sum.Claimed
		d.Delivered = sum.Delivered
		out = append(out, d)
	}
	return out, nil
}

// Slots returns a draw's entries in chronological order.
func (s *Service) Slots(ctx context.Context, drawID string) ([]plans.Entry, error) {
	if _, err := s.get(ctx, drawID); err != nil {
		return nil, err
	}
	return s.plans.ListEntries(ctx, drawID)
}

func (s *Service) Delete(ctx context.Context, drawID string) error {
	if _, err := s.get(ctx, drawID); err != nil {
		return err
	}
	return s.plans.ResetPlan(ctx, drawID)
}

func (s *Service) get(ctx context.Context, drawID string) (plans.Plan, error) {
	if strings.TrimSpace(drawID) == "" {
		return plans.Plan{}, fmt.Errorf("%w: draw id is required", internaltypes.ErrInvalidArgument)
	}
	p, err := s.plans.GetPlan(ctx, drawID)
	if err != nil {
		return plans.Plan{}, err
	}
	if p.Family != plans.FamilyRandy {
		return plans.Plan{}, internaltypes.ErrNotFound
	}
	return p, nil
}

func fromPlan(p plans.Plan) Draw {
	d := Draw{
		ID:            p.ID,
		PrizeText:     p.Meta[metaPrize],
		MessagePeriod: p.Meta[metaPeriod],
		OnePerUser:    p.ClaimScope != plans.ScopeNone,
		StartTime:     p.WindowStart,
		CreatedAt:     p.CreatedAt,
	}
	d.WinnerCount, _ = strconv.Atoi(p.Meta[metaWinners])
	d.MinMessages, _ = strconv.Atoi(p.Meta[metaMinMessages])
	d.DistributionHours, _ = strconv.ParseFloat(p.Meta[metaHours], 64)
	d.SendAnnouncement, _ = strconv.ParseBool(p.Meta[metaAnnouncement])
	d.PinMessage, _ = strconv.ParseBool(p.Meta[metaPin])
	return d
}

func parsePeriod(s string) (string, error) {
	switch p := strings.ToLower(strings.TrimSpace(s)); p {
	case "":
		return PeriodNone, nil
	case PeriodNone, PeriodDay, PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	}
	return "", fmt.Errorf("%w: unknown message period %q", internaltypes.ErrInvalidArgument, s)
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
