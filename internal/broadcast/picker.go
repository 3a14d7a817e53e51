package broadcast

import (
	"context"

	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/worker"
)

// Picker answers for broadcast entries, whose recipient is fixed when the
// message is queued, and asks Next for everything else.
type Picker struct {
	Next worker.Picker
}

func (p Picker) Pick(ctx context.Context, e plans.Entry) (int64, error) {
	if uid, ok := Recipient(e); ok {
		return uid, nil
	}
	return p.Next.Pick(ctx, e)
}

var _ worker.Picker = Picker{}
