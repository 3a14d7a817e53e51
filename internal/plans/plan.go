package plans

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/dropsched/internal/internaltypes"
)

// Family groups plans whose items come from the same pool.
type Family string

const (
	FamilyPromo        Family = "promo"
	FamilyRandy        Family = "randy"
	FamilyBroadcast    Family = "broadcast"
	FamilyAnnouncement Family = "announcement"
)

// ClaimScope controls the one-per-claimant constraint.
type ClaimScope string

const (
	ScopeNone   ClaimScope = "none"
	ScopePlan   ClaimScope = "plan"
	ScopeFamily ClaimScope = "family"
)

func ParseScope(s string) (ClaimScope, error) {
	switch ClaimScope(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScopeNone:
		return ScopeNone, nil
	case ScopePlan:
		return ScopePlan, nil
	case ScopeFamily:
		return ScopeFamily, nil
	}
	return "", fmt.Errorf("%w: unknown claim scope %q", internaltypes.ErrInvalidArgument, s)
}

type Plan struct {
	ID            string
	Family        Family
	Label         string
	WindowStart   time.Time
	WindowSeconds int64
	ClaimScope    ClaimScope
	Meta          map[string]string
	CreatedAt     time.Time
}

func (p Plan) WindowEnd() time.Time {
	return p.WindowStart.Add(time.Duration(p.WindowSeconds) * time.Second)
}

// Summary is a plan with its entry counters.
type Summary struct {
	Plan
	Total     int
	Claimed   int
	Delivered int
}

type Entry struct {
	ID          int64
	PlanID      string
	Family      Family
	ItemID      string
	Position    int
	ScheduledAt time.Time

	Claimed     bool
	ClaimedBy   *int64
	ClaimedAt   *time.Time
	Delivered   bool
	DeliveredAt *time.Time
}

type CreateRequest struct {
	Family      Family
	Label       string
	Items       []string
	WindowHours float64
	// WindowSeconds, when non-zero, is used instead of WindowHours.
	WindowSeconds int64
	// Start defaults to the service clock.
	Start time.Time
	Scope ClaimScope
	Meta  map[string]string
}

func (r CreateRequest) validate() error {
	if len(r.Items) == 0 {
		return internaltypes.ErrEmptyPool
	}
	if strings.TrimSpace(string(r.Family)) == "" {
		return fmt.Errorf("%w: family required", internaltypes.ErrInvalidArgument)
	}
	if _, err := ParseScope(string(r.Scope)); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(r.Items))
	for i, it := range r.Items {
		if strings.TrimSpace(it) == "" {
			return fmt.Errorf("%w: item %d is blank", internaltypes.ErrInvalidArgument, i)
		}
		if _, dup := seen[it]; dup {
			return fmt.Errorf("%w: item %q appears twice", internaltypes.ErrInvalidArgument, it)
		}
		seen[it] = struct{}{}
	}
	return nil
}
