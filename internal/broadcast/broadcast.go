// Package broadcast queues direct messages to members and announcements to
// the group as distribution plans, so the worker delivers them through the
// same claim contract as codes and prizes.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/slots"
)

const (
	MetaText           = "message_text"
	MetaParseMode      = "parse_mode"
	MetaPreview        = "message_preview"
	MetaNoLinkPreview  = "disable_web_page_preview"
	MetaPhotoURL       = "photo_url"
	MetaInlineKeyboard = "inline_keyboard"
	MetaRecipients     = "recipient_count"
	MetaPin            = "pin_message"
	MetaMediaType      = "media_type"
	MetaKind           = "announcement_type"
)

const (
	defaultSpreadMinutes = 10
	previewRunes         = 100
	historyLimit         = 50
)

// Audience resolves who a broadcast goes to.
type Audience interface {
	Recipients(ctx context.Context, all bool, ids []int64) ([]int64, error)
}

type SendRequest struct {
	Message   string
	ParseMode string
	SendToAll bool
	UserIDs   []int64
	// nil means true.
	DisableWebPagePreview *bool
	PhotoURL              string
	InlineKeyboard        json.RawMessage
	// SpreadMinutes paces delivery over a window; 0 uses the default.
	SpreadMinutes float64
	Start         time.Time
}

// Log is one broadcast with its delivery progress.
type Log struct {
	ID                    string
	Text                  string
	Preview               string
	ParseMode             string
	DisableWebPagePreview bool
	PhotoURL              string
	InlineKeyboard        json.RawMessage
	RecipientCount        int
	Claimed               int
	Delivered             int
	SentAt                time.Time
}

type AnnounceRequest struct {
	Message        string
	ParseMode      string
	PinMessage     bool
	PhotoURL       string
	MediaType      string
	InlineKeyboard json.RawMessage
	Kind           string
	// Start defaults to now.
	Start time.Time
}

type Announcement struct {
	ID             string
	Text           string
	ParseMode      string
	PinMessage     bool
	PhotoURL       string
	MediaType      string
	InlineKeyboard json.RawMessage
	Kind           string
	SendAt         time.Time
	CreatedAt      time.Time
	Sent           bool
}

type Service struct {
	plans    *plans.Service
	audience Audience
	logger   zerolog.Logger
}

func NewService(p *plans.Service, audience Audience, logger zerolog.Logger) *Service {
	return &Service{plans: p, audience: audience, logger: logger.With().Str("component", "broadcast").Logger()}
}

// Send queues one entry per recipient, spread over the pacing window.
func (s *Service) Send(ctx context.Context, req SendRequest) (Log, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return Log{}, fmt.Errorf("%w: message is required", internaltypes.ErrInvalidArgument)
	}
	mode, err := parseMode(req.ParseMode)
	if err != nil {
		return Log{}, err
	}
	keyboard, err := keyboardJSON(req.InlineKeyboard)
	if err != nil {
		return Log{}, err
	}
	window, err := spreadSeconds(req.SpreadMinutes)
	if err != nil {
		return Log{}, err
	}

	recipients, err := s.audience.Recipients(ctx, req.SendToAll, req.UserIDs)
	if err != nil {
		return Log{}, err
	}
	if len(recipients) == 0 {
		return Log{}, fmt.Errorf("%w: no users found", internaltypes.ErrNotFound)
	}

	key := uuid.NewString()
	items := make([]string, len(recipients))
	for i, uid := range recipients {
		items[i] = itemFor(key, uid)
	}
	preview := previewOf(text)
	noLinkPreview := req.DisableWebPagePreview == nil || *req.DisableWebPagePreview

	p, entries, err := s.plans.CreatePlan(ctx, plans.CreateRequest{
		Family:        plans.FamilyBroadcast,
		Label:         preview,
		Items:         items,
		WindowSeconds: window,
		Start:         req.Start,
		Scope:         plans.ScopeNone,
		Meta: map[string]string{
			MetaText:           text,
			MetaParseMode:      mode,
			MetaPreview:        preview,
			MetaNoLinkPreview:  strconv.FormatBool(noLinkPreview),
			MetaPhotoURL:       strings.TrimSpace(req.PhotoURL),
			MetaInlineKeyboard: keyboard,
			MetaRecipients:     strconv.Itoa(len(recipients)),
		},
	})
	if err != nil {
		return Log{}, err
	}
	s.logger.Info().Str("plan_id", p.ID).Int("recipients", len(entries)).Msg("broadcast queued")
	return logOf(plans.Summary{Plan: p, Total: len(entries)}), nil
}

// History returns the most recent broadcasts, newest first.
func (s *Service) History(ctx context.Context) ([]Log, error) {
	sums, err := s.plans.ListPlans(ctx, plans.FamilyBroadcast)
	if err != nil {
		return nil, err
	}
	if len(sums) > historyLimit {
		sums = sums[:historyLimit]
	}
	out := make([]Log, len(sums))
	for i, sum := range sums {
		out[i] = logOf(sum)
	}
	return out, nil
}

// Announce queues a single group announcement at req.Start.
func (s *Service) Announce(ctx context.Context, req AnnounceRequest) (Announcement, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return Announcement{}, fmt.Errorf("%w: message is required", internaltypes.ErrInvalidArgument)
	}
	mode, err := parseMode(req.ParseMode)
	if err != nil {
		return Announcement{}, err
	}
	keyboard, err := keyboardJSON(req.InlineKeyboard)
	if err != nil {
		return Announcement{}, err
	}
	media, err := oneOf("media type", req.MediaType, "photo", "photo", "video", "animation")
	if err != nil {
		return Announcement{}, err
	}
	kind, err := oneOf("announcement type", req.Kind, "general", "general", "promocode", "randy")
	if err != nil {
		return Announcement{}, err
	}

	p, entries, err := s.plans.CreatePlan(ctx, plans.CreateRequest{
		Family:        plans.FamilyAnnouncement,
		Label:         previewOf(text),
		Items:         []string{"announcement-" + uuid.NewString()},
		WindowSeconds: 1,
		Start:         req.Start,
		Scope:         plans.ScopeNone,
		Meta: map[string]string{
			MetaText:           text,
			MetaParseMode:      mode,
			MetaPin:            strconv.FormatBool(req.PinMessage),
			MetaPhotoURL:       strings.TrimSpace(req.PhotoURL),
			MetaMediaType:      media,
			MetaInlineKeyboard: keyboard,
			MetaKind:           kind,
		},
	})
	if err != nil {
		return Announcement{}, err
	}
	s.logger.Info().Str("plan_id", p.ID).Str("kind", kind).Msg("announcement queued")
	return announcementOf(plans.Summary{Plan: p, Total: len(entries)}), nil
}

func (s *Service) Announcements(ctx context.Context) ([]Announcement, error) {
	sums, err := s.plans.ListPlans(ctx, plans.FamilyAnnouncement)
	if err != nil {
		return nil, err
	}
	out := make([]Announcement, len(sums))
	for i, sum := range sums {
		out[i] = announcementOf(sum)
	}
	return out, nil
}

// Recipient returns the member a broadcast entry is addressed to.
func Recipient(e plans.Entry) (int64, bool) {
	if e.Family != plans.FamilyBroadcast {
		return 0, false
	}
	i := strings.LastIndexByte(e.ItemID, '/')
	if i < 0 {
		return 0, false
	}
	uid, err := strconv.ParseInt(e.ItemID[i+1:], 10, 64)
	if err != nil || uid == 0 {
		return 0, false
	}
	return uid, true
}

func itemFor(key string, uid int64) string { return key + "/" + strconv.FormatInt(uid, 10) }

func logOf(sum plans.Summary) Log {
	m := sum.Meta
	l := Log{
		ID:             sum.ID,
		Text:           m[MetaText],
		Preview:        m[MetaPreview],
		ParseMode:      m[MetaParseMode],
		PhotoURL:       m[MetaPhotoURL],
		RecipientCount: sum.Total,
		Claimed:        sum.Claimed,
		Delivered:      sum.Delivered,
		SentAt:         sum.CreatedAt,
	}
	l.DisableWebPagePreview, _ = strconv.ParseBool(m[MetaNoLinkPreview])
	if kb := m[MetaInlineKeyboard]; kb != "" {
		l.InlineKeyboard = json.RawMessage(kb)
	}
	return l
}

func announcementOf(sum plans.Summary) Announcement {
	m := sum.Meta
	a := Announcement{
		ID:        sum.ID,
		Text:      m[MetaText],
		ParseMode: m[MetaParseMode],
		PhotoURL:  m[MetaPhotoURL],
		MediaType: m[MetaMediaType],
		Kind:      m[MetaKind],
		SendAt:    sum.WindowStart,
		CreatedAt: sum.CreatedAt,
		Sent:      sum.Total > 0 && sum.Delivered == sum.Total,
	}
	a.PinMessage, _ = strconv.ParseBool(m[MetaPin])
	if kb := m[MetaInlineKeyboard]; kb != "" {
		a.InlineKeyboard = json.RawMessage(kb)
	}
	return a
}

func previewOf(text string) string {
	r := []rune(text)
	if len(r) <= previewRunes {
		return text
	}
	return string(r[:previewRunes]) + "..."
}

func parseMode(v string) (string, error) {
	switch strings.TrimSpace(v) {
	case "", "HTML":
		return "HTML", nil
	case "Markdown", "MarkdownV2":
		return strings.TrimSpace(v), nil
	}
	return "", fmt.Errorf("%w: unknown parse mode %q", internaltypes.ErrInvalidArgument, v)
}

func oneOf(name, v, def string, allowed ...string) (string, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return def, nil
	}
	for _, a := range allowed {
		if v == a {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: unknown %s %q", internaltypes.ErrInvalidArgument, name, v)
}

func keyboardJSON(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if !json.Valid(raw) {
		return "", fmt.Errorf("%w: inline keyboard is not valid JSON", internaltypes.ErrInvalidArgument)
	}
	return string(raw), nil
}

func spreadSeconds(minutes float64) (int64, error) {
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) || minutes < 0 {
		return 0, fmt.Errorf("%w: spread minutes must not be negative", internaltypes.ErrInvalidArgument)
	}
	if minutes == 0 {
		minutes = defaultSpreadMinutes
	}
	if minutes*60 > float64(slots.MaxSeconds) {
		return 0, fmt.Errorf("%w: spread of %v minutes is too long", internaltypes.ErrInvalidArgument, minutes)
	}
	secs := int64(math.Ceil(minutes * 60))
	if secs < 1 {
		secs = 1
	}
	return secs, nil
}
