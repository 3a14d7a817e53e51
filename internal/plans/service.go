package plans

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/slots"
)

// Claim outcomes reported to the Recorder.
const (
	OutcomeClaimed   = "claimed"
	OutcomeTaken     = "already_claimed"
	OutcomeDuplicate = "duplicate_claimant"
	OutcomeNotFound  = "not_found"
	OutcomeError     = "error"
)

// Service binds slot schedules to item pools and exposes the claim contract
// used by delivery workers.
type Service struct {
	store  Store
	clock  Clock
	rand   slots.Rand
	pub    Publisher
	rec    Recorder
	logger zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Service {
	return &Service{
		store:  store,
		clock:  systemClock{},
		pub:    nopPublisher{},
		rec:    nopRecorder{},
		logger: logger.With().Str("component", "plans").Logger(),
	}
}

func (s *Service) SetClock(c Clock) { s.clock = c }

// SetRand replaces the slot draw source. Calls into r are serialized, so a
// plain *rand.Rand is safe to share across requests.
func (s *Service) SetRand(r slots.Rand) {
	if r == nil {
		s.rand = nil
		return
	}
	s.rand = &lockedRand{r: r}
}

func (s *Service) SetPublisher(p Publisher) { s.pub = p }
func (s *Service) SetRecorder(r Recorder)   { s.rec = r }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// CreatePlan schedules every item of the pool and persists the plan atomically.
// Sorted slot i is paired with req.Items[i].
func (s *Service) CreatePlan(ctx context.Context, req CreateRequest) (Plan, []Entry, error) {
	if err := req.validate(); err != nil {
		return Plan{}, nil, err
	}
	secs := req.WindowSeconds
	if secs == 0 {
		var err error
		if secs, err = slots.HoursToSeconds(req.WindowHours); err != nil {
			return Plan{}, nil, err
		}
	}
	scope, _ := ParseScope(string(req.Scope))

	start := req.Start
	if start.IsZero() {
		start = s.clock.Now()
	}
	start = start.UTC().Truncate(time.Microsecond)

	times, err := slots.Schedule(len(req.Items), start, secs, s.rand)
	if err != nil {
		return Plan{}, nil, err
	}

	p := Plan{
		ID:            uuid.NewString(),
		Family:        req.Family,
		Label:         req.Label,
		WindowStart:   start,
		WindowSeconds: secs,
		ClaimScope:    scope,
		Meta:          copyMeta(req.Meta),
		CreatedAt:     s.clock.Now().UTC(),
	}
	entries := make([]Entry, len(req.Items))
	for i, item := range req.Items {
		entries[i] = Entry{
			PlanID:      p.ID,
			Family:      p.Family,
			ItemID:      item,
			Position:    i,
			ScheduledAt: times[i],
		}
	}

	stored, err := s.store.InsertPlan(ctx, p, entries)
	if err != nil {
		return Plan{}, nil, fmt.Errorf("create plan: %w", err)
	}

	s.rec.PlanCreated(p.Family, len(stored))
	s.logger.Info().
		Str("plan_id", p.ID).
		Str("family", string(p.Family)).
		Int("entries", len(stored)).
		Int64("window_seconds", secs).
		Str("scope", string(scope)).
		Msg("plan created")
	s.publish(ctx, Event{Type: EventPlanCreated, Family: p.Family, PlanID: p.ID, Count: len(stored), At: p.CreatedAt})

	return p, stored, nil
}

func (s *Service) GetPlan(ctx context.Context, planID string) (Plan, error) {
	return s.store.GetPlan(ctx, planID)
}

func (s *Service) ListPlans(ctx context.Context, family Family) ([]Summary, error) {
	return s.store.ListPlans(ctx, family)
}

func (s *Service) ListEntries(ctx context.Context, planID string) ([]Entry, error) {
	if _, err := s.store.GetPlan(ctx, planID); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, planID)
}

// ListDue returns unclaimed entries scheduled at or before asOf.
func (s *Service) ListDue(ctx context.Context, asOf time.Time) ([]Entry, error) {
	return s.store.ListDue(ctx, asOf)
}

// Claim atomically assigns an entry to claimant. ErrAlreadyClaimed and
// ErrDuplicateClaimant mean another caller won; they must not be retried.
func (s *Service) Claim(ctx context.Context, entryID, claimant int64) (Entry, error) {
	e, err := s.store.ClaimEntry(ctx, entryID, claimant, s.clock.Now().UTC())
	switch {
	case err == nil:
		s.rec.ClaimAttempt(OutcomeClaimed)
	case errors.Is(err, internaltypes.ErrAlreadyClaimed):
		s.rec.ClaimAttempt(OutcomeTaken)
		return Entry{}, err
	case errors.Is(err, internaltypes.ErrDuplicateClaimant):
		s.rec.ClaimAttempt(OutcomeDuplicate)
		return Entry{}, err
	case errors.Is(err, internaltypes.ErrNotFound):
		s.rec.ClaimAttempt(OutcomeNotFound)
		return Entry{}, err
	default:
		s.rec.ClaimAttempt(OutcomeError)
		return Entry{}, fmt.Errorf("claim entry %d: %w", entryID, err)
	}

	s.logger.Debug().Int64("entry_id", e.ID).Int64("claimant", claimant).Msg("entry claimed")
	s.publish(ctx, Event{Type: EventEntryClaimed, Family: e.Family, PlanID: e.PlanID, EntryID: e.ID, ItemID: e.ItemID, Claimant: claimant, At: *e.ClaimedAt})
	return e, nil
}

// MarkDelivered records external delivery of a claimed entry. It succeeds once.
func (s *Service) MarkDelivered(ctx context.Context, entryID int64) (Entry, error) {
	e, err := s.store.MarkDelivered(ctx, entryID, s.clock.Now().UTC())
	if err != nil {
		return Entry{}, err
	}
	s.rec.Delivered(e.Family)
	var claimant int64
	if e.ClaimedBy != nil {
		claimant = *e.ClaimedBy
	}
	s.publish(ctx, Event{Type: EventEntryDelivered, Family: e.Family, PlanID: e.PlanID, EntryID: e.ID, ItemID: e.ItemID, Claimant: claimant, At: *e.DeliveredAt})
	return e, nil
}

func (s *Service) ResetPlan(ctx context.Context, planID string) error {
	p, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePlan(ctx, planID); err != nil {
		return fmt.Errorf("reset plan %s: %w", planID, err)
	}
	s.logger.Warn().Str("plan_id", planID).Msg("plan reset")
	s.publish(ctx, Event{Type: EventPlanDeleted, Family: p.Family, PlanID: planID, At: s.clock.Now().UTC()})
	return nil
}

// ResetFamily deletes every plan of a family and returns how many were removed.
func (s *Service) ResetFamily(ctx context.Context, family Family) (int, error) {
	n, err := s.store.DeleteFamily(ctx, family)
	if err != nil {
		return 0, fmt.Errorf("reset %s plans: %w", family, err)
	}
	s.logger.Warn().Str("family", string(family)).Int("plans", n).Msg("family reset")
	s.publish(ctx, Event{Type: EventReset, Family: family, Count: n, At: s.clock.Now().UTC()})
	return n, nil
}

// ResetAll wipes every plan and all pool state.
func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	s.logger.Warn().Msg("all plans and pools reset")
	s.publish(ctx, Event{Type: EventReset, At: s.clock.Now().UTC()})
	return nil
}

func (s *Service) publish(ctx context.Context, ev Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("event publish failed")
	}
}

type lockedRand struct {
	mu sync.Mutex
	r  slots.Rand
}

func (l *lockedRand) Int64N(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int64N(n)
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
