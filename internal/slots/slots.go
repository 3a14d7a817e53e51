// Package slots spreads N instants pseudo-uniformly over a time window.
//
// The window [0, duration) is cut into N contiguous slices of
// duration/N seconds (integer division; the last slice absorbs the
// remainder). One instant is drawn uniformly from each slice and the
// result is sorted ascending.
package slots

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/example/dropsched/internal/internaltypes"
)

// Rand is the random source used for the intra-slice draw.
// *rand.Rand from math/rand/v2 satisfies it.
type Rand interface {
	Int64N(n int64) int64
}

type globalRand struct{}

func (globalRand) Int64N(n int64) int64 { return rand.Int64N(n) }

// MaxSeconds is the longest window whose offsets still fit in a time.Duration.
const MaxSeconds = math.MaxInt64 / int64(time.Second)

// Slice is an inclusive range of second offsets within the window.
type Slice struct {
	Index int
	Start int64
	End   int64
}

// Slot is one drawn instant. Index is the slice it was drawn from.
type Slot struct {
	Index       int
	ScheduledAt time.Time
}

// Boundaries returns the slice layout for n items over durationSeconds.
// It depends only on its arguments.
func Boundaries(n int, durationSeconds int64) ([]Slice, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: count must be positive, got %d", internaltypes.ErrInvalidArgument, n)
	}
	if durationSeconds <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %ds", internaltypes.ErrInvalidArgument, durationSeconds)
	}
	if durationSeconds > MaxSeconds {
		return nil, fmt.Errorf("%w: duration must not exceed %ds, got %ds", internaltypes.ErrInvalidArgument, MaxSeconds, durationSeconds)
	}

	length := durationSeconds / int64(n)
	out := make([]Slice, n)
	for i := 0; i < n; i++ {
		start := int64(i) * length
		end := start + length - 1
		if i == n-1 {
			end = durationSeconds - 1
		}
		// zero-length slices collapse to a single point
		if end < start {
			end = start
		}
		out[i] = Slice{Index: i, Start: start, End: end}
	}
	return out, nil
}

// Draw picks one slot per slice. The result keeps slice order.
func Draw(n int, start time.Time, durationSeconds int64, r Rand) ([]Slot, error) {
	slices, err := Boundaries(n, durationSeconds)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = globalRand{}
	}
	out := make([]Slot, len(slices))
	for i, s := range slices {
		offset := s.Start + r.Int64N(s.End-s.Start+1)
		out[i] = Slot{Index: s.Index, ScheduledAt: start.Add(time.Duration(offset) * time.Second)}
	}
	return out, nil
}

// Schedule returns n instants in [start, start+durationSeconds), sorted ascending.
func Schedule(n int, start time.Time, durationSeconds int64, r Rand) ([]time.Time, error) {
	drawn, err := Draw(n, start, durationSeconds, r)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(drawn))
	for i, s := range drawn {
		times[i] = s.ScheduledAt
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, nil
}

// HoursToSeconds converts a (possibly fractional) hour count to whole seconds.
func HoursToSeconds(hours float64) (int64, error) {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours <= 0 {
		return 0, fmt.Errorf("%w: window hours must be positive, got %v", internaltypes.ErrInvalidArgument, hours)
	}
	if hours*3600 > float64(MaxSeconds) {
		return 0, fmt.Errorf("%w: window of %v hours is too long", internaltypes.ErrInvalidArgument, hours)
	}
	secs := int64(hours * 3600)
	if secs <= 0 {
		return 0, fmt.Errorf("%w: window hours must be positive, got %v", internaltypes.ErrInvalidArgument, hours)
	}
	return secs, nil
}
