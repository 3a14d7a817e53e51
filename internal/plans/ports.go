package plans

import (
	"context"
	"time"
)

// Store persists plans and entries. Implementations must make InsertPlan
// all-or-nothing and ClaimEntry/MarkDelivered single conditional writes.
type Store interface {
	// InsertPlan writes the plan and every entry in one transaction and
	// returns the entries with their IDs assigned. An item already present
	// in the same family fails the whole insert with ErrAlreadyScheduled.
	InsertPlan(ctx context.Context, p Plan, entries []Entry) ([]Entry, error)
	GetPlan(ctx context.Context, planID string) (Plan, error)
	// ListPlans returns summaries newest first; an empty family lists all.
	ListPlans(ctx context.Context, family Family) ([]Summary, error)
	ListEntries(ctx context.Context, planID string) ([]Entry, error)
	ListDue(ctx context.Context, asOf time.Time) ([]Entry, error)

	// ClaimEntry sets claimed/claimed_by/claimed_at only if the entry is
	// unclaimed and, for scoped plans, the claimant holds no other claimed
	// entry in the scope.
	ClaimEntry(ctx context.Context, entryID, claimant int64, at time.Time) (Entry, error)
	MarkDelivered(ctx context.Context, entryID int64, at time.Time) (Entry, error)

	DeletePlan(ctx context.Context, planID string) error
	DeleteFamily(ctx context.Context, family Family) (int, error)
	// DeleteAll removes every plan and all pool state.
	DeleteAll(ctx context.Context) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type EventType string

const (
	EventPlanCreated    EventType = "plan.created"
	EventPlanDeleted    EventType = "plan.deleted"
	EventEntryClaimed   EventType = "entry.claimed"
	EventEntryDelivered EventType = "entry.delivered"
	EventReset          EventType = "reset"
)

type Event struct {
	Type     EventType `json:"type"`
	Family   Family    `json:"family,omitempty"`
	PlanID   string    `json:"plan_id,omitempty"`
	EntryID  int64     `json:"entry_id,omitempty"`
	ItemID   string    `json:"item_id,omitempty"`
	Claimant int64     `json:"claimant,omitempty"`
	Count    int       `json:"count,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher announces state changes to the bot side. Publishing happens
// after the write commits; a failure is logged and never undoes the write.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Recorder receives operation outcomes for metrics.
type Recorder interface {
	PlanCreated(family Family, entries int)
	ClaimAttempt(outcome string)
	Delivered(family Family)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) error { return nil }

type nopRecorder struct{}

func (nopRecorder) PlanCreated(Family, int) {}
func (nopRecorder) ClaimAttempt(string)     {}
func (nopRecorder) Delivered(Family)        {}
