// Package webhook lets the worker hand picking and delivery to the bot
// process over HTTP.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/worker"
)

// PlanLookup resolves the plan an entry belongs to.
type PlanLookup interface {
	GetPlan(ctx context.Context, planID string) (plans.Plan, error)
}

type Client struct {
	hc    *http.Client
	base  string
	token string

	plans PlanLookup
	// plans are immutable once created
	cache sync.Map
}

func New(baseURL, token string) *Client {
	return &Client{
		hc:    &http.Client{Timeout: 10 * time.Second},
		base:  baseURL,
		token: token,
	}
}

// WithPlans makes every request carry the entry's plan label and meta,
// which is where message text and media live for broadcasts.
func (c *Client) WithPlans(l PlanLookup) *Client {
	c.plans = l
	return c
}

type entryPayload struct {
	EntryID     int64             `json:"entry_id"`
	PlanID      string            `json:"plan_id"`
	Family      string            `json:"family"`
	ItemID      string            `json:"item_id"`
	ScheduledAt time.Time         `json:"scheduled_at"`
	Claimant    *int64            `json:"claimant,omitempty"`
	Label       string            `json:"label,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

func (c *Client) payloadOf(ctx context.Context, e plans.Entry) (entryPayload, error) {
	out := entryPayload{
		EntryID:     e.ID,
		PlanID:      e.PlanID,
		Family:      string(e.Family),
		ItemID:      e.ItemID,
		ScheduledAt: e.ScheduledAt,
		Claimant:    e.ClaimedBy,
	}
	if c.plans == nil {
		return out, nil
	}
	p, err := c.plan(ctx, e.PlanID)
	if err != nil {
		return entryPayload{}, fmt.Errorf("load plan %s: %w", e.PlanID, err)
	}
	out.Label = p.Label
	out.Meta = p.Meta
	return out, nil
}

func (c *Client) plan(ctx context.Context, id string) (plans.Plan, error) {
	if v, ok := c.cache.Load(id); ok {
		return v.(plans.Plan), nil
	}
	p, err := c.plans.GetPlan(ctx, id)
	if err != nil {
		return plans.Plan{}, err
	}
	c.cache.Store(id, p)
	return p, nil
}

// Pick asks the bot for a recipient. 204 means nobody is eligible.
func (c *Client) Pick(ctx context.Context, e plans.Entry) (int64, error) {
	payload, err := c.payloadOf(ctx, e)
	if err != nil {
		return 0, err
	}
	status, body, err := c.do(ctx, "/pick", payload)
	if err != nil {
		return 0, err
	}
	if status == http.StatusNoContent {
		return 0, worker.ErrNoCandidate
	}
	if status >= 400 {
		return 0, fmt.Errorf("pick failed (status=%d)", status)
	}
	var r struct {
		Claimant int64 `json:"claimant"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return 0, fmt.Errorf("pick: decode response: %w", err)
	}
	if r.Claimant == 0 {
		return 0, worker.ErrNoCandidate
	}
	return r.Claimant, nil
}

func (c *Client) Deliver(ctx context.Context, e plans.Entry) error {
	payload, err := c.payloadOf(ctx, e)
	if err != nil {
		return err
	}
	status, body, err := c.do(ctx, "/deliver", payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		var r struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &r)
		if r.Error != "" {
			return fmt.Errorf("deliver failed: %s (status=%d)", r.Error, status)
		}
		return fmt.Errorf("deliver failed (status=%d)", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, path string, payload any) (int, []byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

var (
	_ worker.Picker    = (*Client)(nil)
	_ worker.Deliverer = (*Client)(nil)
)
