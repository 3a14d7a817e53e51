package web

import (
	"encoding/json"
	"time"

	"github.com/example/dropsched/internal/broadcast"
	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/promo"
	"github.com/example/dropsched/internal/randy"
)

type planView struct {
	ID            string            `json:"id"`
	Family        string            `json:"family"`
	Label         string            `json:"label"`
	WindowStart   time.Time         `json:"window_start"`
	WindowEnd     time.Time         `json:"window_end"`
	WindowSeconds int64             `json:"window_seconds"`
	ClaimScope    string            `json:"claim_scope"`
	Meta          map[string]string `json:"meta"`
	CreatedAt     time.Time         `json:"created_at"`
	Total         *int              `json:"total_entries,omitempty"`
	Claimed       *int              `json:"claimed_entries,omitempty"`
	Delivered     *int              `json:"delivered_entries,omitempty"`
	Entries       []entryView       `json:"entries,omitempty"`
}

type entryView struct {
	ID               int64      `json:"id"`
	PlanID           string     `json:"plan_id"`
	Family           string     `json:"family"`
	ItemID           string     `json:"item_id"`
	Position         int        `json:"position"`
	ScheduledAt      time.Time  `json:"scheduled_at"`
	ScheduledAtLocal string     `json:"scheduled_at_local"`
	Claimed          bool       `json:"claimed"`
	ClaimedBy        *int64     `json:"claimed_by"`
	ClaimedAt        *time.Time `json:"claimed_at"`
	Delivered        bool       `json:"delivered"`
	DeliveredAt      *time.Time `json:"delivered_at"`
}

type codeView struct {
	Code           string     `json:"code"`
	CreatedAt      time.Time  `json:"created_at"`
	PlanID         *string    `json:"plan_id"`
	EntryID        *int64     `json:"entry_id"`
	SchedTime      *time.Time `json:"sched_time"`
	SchedTimeLocal *string    `json:"sched_time_local"`
	MinMessages    int        `json:"min_messages"`
	Assigned       bool       `json:"assigned"`
	AssignedUser   *int64     `json:"assigned_user"`
	AssignedAt     *time.Time `json:"assigned_at"`
	DMSent         bool       `json:"dm_sent"`
}

type drawView struct {
	ID                string    `json:"id"`
	WinnerCount       int       `json:"winner_count"`
	DistributionHours float64   `json:"distribution_hours"`
	PrizeText         string    `json:"prize_text"`
	MinMessages       int       `json:"min_messages"`
	MessagePeriod     string    `json:"message_period"`
	SendAnnouncement  bool      `json:"send_announcement"`
	PinMessage        bool      `json:"pin_message"`
	OnePerUser        bool      `json:"one_per_user"`
	StartTime         time.Time `json:"start_time"`
	StartTimeLocal    string    `json:"start_time_local"`
	CreatedAt         time.Time `json:"created_at"`
	TotalSlots        int       `json:"total_slots"`
	AssignedSlots     int       `json:"assigned_slots"`
	DeliveredSlots    int       `json:"delivered_slots"`
}

func (s *Server) planView(p plans.Plan) planView {
	return planView{
		ID:            p.ID,
		Family:        string(p.Family),
		Label:         p.Label,
		WindowStart:   p.WindowStart,
		WindowEnd:     p.WindowEnd(),
		WindowSeconds: p.WindowSeconds,
		ClaimScope:    string(p.ClaimScope),
		Meta:          p.Meta,
		CreatedAt:     p.CreatedAt,
	}
}

func (s *Server) summaryView(sum plans.Summary) planView {
	v := s.planView(sum.Plan)
	total, claimed, delivered := sum.Total, sum.Claimed, sum.Delivered
	v.Total, v.Claimed, v.Delivered = &total, &claimed, &delivered
	return v
}

func (s *Server) entryView(e plans.Entry) entryView {
	return entryView{
		ID:               e.ID,
		PlanID:           e.PlanID,
		Family:           string(e.Family),
		ItemID:           e.ItemID,
		Position:         e.Position,
		ScheduledAt:      e.ScheduledAt,
		ScheduledAtLocal: s.local(e.ScheduledAt),
		Claimed:          e.Claimed,
		ClaimedBy:        e.ClaimedBy,
		ClaimedAt:        e.ClaimedAt,
		Delivered:        e.Delivered,
		DeliveredAt:      e.DeliveredAt,
	}
}

func (s *Server) entryViews(es []plans.Entry) []entryView {
	out := make([]entryView, len(es))
	for i, e := range es {
		out[i] = s.entryView(e)
	}
	return out
}

func (s *Server) codeView(c promo.CodeStatus) codeView {
	return codeView{
		Code:           c.Code,
		CreatedAt:      c.CreatedAt,
		PlanID:         c.PlanID,
		EntryID:        c.EntryID,
		SchedTime:      c.ScheduledAt,
		SchedTimeLocal: s.localPtr(c.ScheduledAt),
		MinMessages:    c.MinMessages,
		Assigned:       c.Claimed,
		AssignedUser:   c.ClaimedBy,
		AssignedAt:     c.ClaimedAt,
		DMSent:         c.Delivered,
	}
}

func (s *Server) drawView(d randy.Draw) drawView {
	return drawView{
		ID:                d.ID,
		WinnerCount:       d.WinnerCount,
		DistributionHours: d.DistributionHours,
		PrizeText:         d.PrizeText,
		MinMessages:       d.MinMessages,
		MessagePeriod:     d.MessagePeriod,
		SendAnnouncement:  d.SendAnnouncement,
		PinMessage:        d.PinMessage,
		OnePerUser:        d.OnePerUser,
		StartTime:         d.StartTime,
		StartTimeLocal:    s.local(d.StartTime),
		CreatedAt:         d.CreatedAt,
		TotalSlots:        d.TotalSlots,
		AssignedSlots:     d.AssignedSlots,
		DeliveredSlots:    d.Delivered,
	}
}

type messageLogView struct {
	ID                    string          `json:"id"`
	MessageText           string          `json:"message_text"`
	MessagePreview        string          `json:"message_preview"`
	ParseMode             string          `json:"parse_mode"`
	DisableWebPagePreview bool            `json:"disable_web_page_preview"`
	PhotoURL              string          `json:"photo_url,omitempty"`
	InlineKeyboard        json.RawMessage `json:"inline_keyboard,omitempty"`
	RecipientCount        int             `json:"recipient_count"`
	ClaimedCount          int             `json:"claimed_count"`
	DeliveredCount        int             `json:"delivered_count"`
	SentAt                time.Time       `json:"sent_at"`
	SentAtLocal           string          `json:"sent_at_local"`
}

type announcementView struct {
	ID               string          `json:"id"`
	Message          string          `json:"message"`
	ParseMode        string          `json:"parse_mode"`
	PinMessage       bool            `json:"pin_message"`
	PhotoURL         string          `json:"photo_url,omitempty"`
	MediaType        string          `json:"media_type"`
	InlineKeyboard   json.RawMessage `json:"inline_keyboard,omitempty"`
	AnnouncementType string          `json:"announcement_type"`
	Status           string          `json:"status"`
	SendAt           time.Time       `json:"send_at"`
	SendAtLocal      string          `json:"send_at_local"`
	CreatedAt        time.Time       `json:"created_at"`
}

type memberView struct {
	UserID        int64      `json:"user_id"`
	Username      string     `json:"username"`
	FirstName     string     `json:"first_name"`
	MessageCount  int        `json:"message_count"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

type inviteLinkView struct {
	ID            int64     `json:"id"`
	InviteLink    string    `json:"invite_link"`
	Name          string    `json:"name"`
	CreatorID     *int64    `json:"creator_id"`
	CreatedAt     time.Time `json:"created_at"`
	TotalInvites  int       `json:"total_invites"`
	ActiveInvites int       `json:"active_invites"`
}

type invitedUserView struct {
	ID         int64     `json:"id"`
	InviteLink string    `json:"invite_link"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	FirstName  string    `json:"first_name"`
	JoinedAt   time.Time `json:"joined_at"`
	IsActive   bool      `json:"is_active"`
}

type dayCountView struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func (s *Server) messageLogView(l broadcast.Log) messageLogView {
	return messageLogView{
		ID:                    l.ID,
		MessageText:           l.Text,
		MessagePreview:        l.Preview,
		ParseMode:             l.ParseMode,
		DisableWebPagePreview: l.DisableWebPagePreview,
		PhotoURL:              l.PhotoURL,
		InlineKeyboard:        l.InlineKeyboard,
		RecipientCount:        l.RecipientCount,
		ClaimedCount:          l.Claimed,
		DeliveredCount:        l.Delivered,
		SentAt:                l.SentAt,
		SentAtLocal:           s.local(l.SentAt),
	}
}

func (s *Server) announcementView(a broadcast.Announcement) announcementView {
	status := "pending"
	if a.Sent {
		status = "sent"
	}
	return announcementView{
		ID:               a.ID,
		Message:          a.Text,
		ParseMode:        a.ParseMode,
		PinMessage:       a.PinMessage,
		PhotoURL:         a.PhotoURL,
		MediaType:        a.MediaType,
		InlineKeyboard:   a.InlineKeyboard,
		AnnouncementType: a.Kind,
		Status:           status,
		SendAt:           a.SendAt,
		SendAtLocal:      s.local(a.SendAt),
		CreatedAt:        a.CreatedAt,
	}
}

func memberViews(ms []community.Member) []memberView {
	out := make([]memberView, len(ms))
	for i, m := range ms {
		out[i] = memberView{
			UserID:        m.UserID,
			Username:      m.Username,
			FirstName:     m.FirstName,
			MessageCount:  m.MessageCount,
			LastMessageAt: m.LastMessageAt,
		}
	}
	return out
}
