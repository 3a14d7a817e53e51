package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/dropsched/internal/broadcast"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/promo"
	"github.com/example/dropsched/internal/randy"
	"github.com/example/dropsched/internal/settings"
)

const resetPhrase = "RESET"

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.Auth.Authenticate(r.Context(), body.Username, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.Auth.SetSession(w, r, u.ID); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "logged in", map[string]any{"id": u.ID, "username": u.Username})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.Auth.ClearSession(w)
	writeOK(w, "logged out", nil)
}

// --- promo codes ---

func (s *Server) handlePromoList(w http.ResponseWriter, r *http.Request) {
	codes, err := s.Promo.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]codeView, len(codes))
	for i, c := range codes {
		out[i] = s.codeView(c)
	}
	writeOK(w, "", out)
}

func (s *Server) handlePromoUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Codes []string `json:"codes"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := s.Promo.Upload(r.Context(), body.Codes)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, fmt.Sprintf("%d codes uploaded successfully", n), map[string]int{"inserted": n, "submitted": len(body.Codes)})
}

func (s *Server) handlePromoSchedule(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Hours             float64 `json:"hours"`
		CodesToDistribute int     `json:"codesToDistribute"`
		OnePerUser        *bool   `json:"onePerUser"`
		MinMessages       int     `json:"minMessages"`
		StartTime         string  `json:"startTime"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := s.parseTime(body.StartTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, entries, err := s.Promo.Schedule(r.Context(), promo.ScheduleRequest{
		Hours:       body.Hours,
		Count:       body.CodesToDistribute,
		OnePerUser:  body.OnePerUser,
		MinMessages: body.MinMessages,
		Start:       start,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := s.planView(p)
	v.Entries = s.entryViews(entries)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("Schedule created for %d codes over %v hours", len(entries), body.Hours),
		"codesCount": len(entries),
		"data":       v,
	})
}

func (s *Server) handlePromoReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Promo.Reset(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "promo codes reset", nil)
}

// --- randy ---

func (s *Server) handleRandyList(w http.ResponseWriter, r *http.Request) {
	draws, err := s.Randy.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]drawView, len(draws))
	for i, d := range draws {
		out[i] = s.drawView(d)
	}
	writeOK(w, "", out)
}

func (s *Server) handleRandyCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WinnerCount       int     `json:"winnerCount"`
		DistributionHours float64 `json:"distributionHours"`
		PrizeText         string  `json:"prizeText"`
		MinMessages       int     `json:"minMessages"`
		MessagePeriod     string  `json:"messagePeriod"`
		SendAnnouncement  *bool   `json:"sendAnnouncement"`
		PinMessage        *bool   `json:"pinMessage"`
		OnePerUser        *bool   `json:"onePerUser"`
		StartTime         string  `json:"startTime"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := s.parseTime(body.StartTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Randy.Create(r.Context(), randy.CreateRequest{
		WinnerCount:       body.WinnerCount,
		DistributionHours: body.DistributionHours,
		PrizeText:         body.PrizeText,
		MinMessages:       body.MinMessages,
		MessagePeriod:     body.MessagePeriod,
		SendAnnouncement:  body.SendAnnouncement,
		PinMessage:        body.PinMessage,
		OnePerUser:        body.OnePerUser,
		StartTime:         start,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Randy schedule created successfully",
		"scheduleId": d.ID,
		"data":       s.drawView(d),
	})
}

// drawID reads the draw id from the path or the legacy query parameters.
func drawID(r *http.Request) string {
	if id := chi.URLParam(r, "id"); id != "" {
		return id
	}
	if id := r.URL.Query().Get("scheduleId"); id != "" {
		return id
	}
	return r.URL.Query().Get("id")
}

func (s *Server) handleRandyDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.Randy.Delete(r.Context(), drawID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "Randy schedule deleted successfully", nil)
}

func (s *Server) handleRandySlots(w http.ResponseWriter, r *http.Request) {
	entries, err := s.Randy.Slots(r.Context(), drawID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "", s.entryViews(entries))
}

// --- messages ---

func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message               string          `json:"message"`
		ParseMode             string          `json:"parseMode"`
		SendToAll             bool            `json:"sendToAll"`
		UserIDs               []int64         `json:"userIds"`
		DisableWebPagePreview *bool           `json:"disableWebPagePreview"`
		PhotoURL              string          `json:"photoUrl"`
		InlineKeyboard        json.RawMessage `json:"inlineKeyboard"`
		SpreadMinutes         float64         `json:"spreadMinutes"`
		StartTime             string          `json:"startTime"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	start, err := s.parseTime(body.StartTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	l, err := s.Broadcast.Send(r.Context(), broadcast.SendRequest{
		Message:               body.Message,
		ParseMode:             body.ParseMode,
		SendToAll:             body.SendToAll,
		UserIDs:               body.UserIDs,
		DisableWebPagePreview: body.DisableWebPagePreview,
		PhotoURL:              body.PhotoURL,
		InlineKeyboard:        body.InlineKeyboard,
		SpreadMinutes:         body.SpreadMinutes,
		Start:                 start,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      "Messages queued for sending",
		"sentCount":    l.RecipientCount,
		"messageLogId": l.ID,
		"data":         s.messageLogView(l),
	})
}

func (s *Server) handleMessageHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := s.Broadcast.History(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]messageLogView, len(logs))
	for i, l := range logs {
		out[i] = s.messageLogView(l)
	}
	writeOK(w, "", out)
}

func (s *Server) handleAnnouncementCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message          string          `json:"message"`
		ParseMode        string          `json:"parseMode"`
		PinMessage       bool            `json:"pinMessage"`
		PhotoURL         string          `json:"photoUrl"`
		MediaType        string          `json:"mediaType"`
		InlineKeyboard   json.RawMessage `json:"inlineKeyboard"`
		AnnouncementType string          `json:"announcementType"`
		SendTime         string          `json:"sendTime"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	at, err := s.parseTime(body.SendTime)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.Broadcast.Announce(r.Context(), broadcast.AnnounceRequest{
		Message:        body.Message,
		ParseMode:      body.ParseMode,
		PinMessage:     body.PinMessage,
		PhotoURL:       body.PhotoURL,
		MediaType:      body.MediaType,
		InlineKeyboard: body.InlineKeyboard,
		Kind:           body.AnnouncementType,
		Start:          at,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "Announcement queued successfully", s.announcementView(a))
}

func (s *Server) handleAnnouncementList(w http.ResponseWriter, r *http.Request) {
	list, err := s.Broadcast.Announcements(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]announcementView, len(list))
	for i, a := range list {
		out[i] = s.announcementView(a)
	}
	writeOK(w, "", out)
}

// --- community ---

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	p, err := s.Community.Members(r.Context(), page, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "", map[string]any{
		"users":      memberViews(p.Members),
		"total":      p.Total,
		"page":       p.Page,
		"totalPages": p.TotalPages,
	})
}

func intQuery(r *http.Request, name string) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", internaltypes.ErrInvalidArgument, name)
	}
	return n, nil
}

func (s *Server) handleInvites(w http.ResponseWriter, r *http.Request) {
	links, err := s.Community.Invites(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]inviteLinkView, len(links))
	for i, l := range links {
		out[i] = inviteLinkView{
			ID:            l.ID,
			InviteLink:    l.Link,
			Name:          l.Name,
			CreatorID:     l.CreatorID,
			CreatedAt:     l.CreatedAt,
			TotalInvites:  l.TotalInvites,
			ActiveInvites: l.ActiveInvites,
		}
	}
	writeOK(w, "", out)
}

func (s *Server) handleInviteDetails(w http.ResponseWriter, r *http.Request) {
	users, err := s.Community.InviteDetails(r.Context(), r.URL.Query().Get("link"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]invitedUserView, len(users))
	for i, u := range users {
		out[i] = invitedUserView{
			ID:         u.ID,
			InviteLink: u.Link,
			UserID:     u.UserID,
			Username:   u.Username,
			FirstName:  u.FirstName,
			JoinedAt:   u.JoinedAt,
			IsActive:   u.Active,
		}
	}
	writeOK(w, "", out)
}

// handleStats merges the community counters with code and draw progress.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	o, err := s.Community.Overview(r.Context(), s.Plans.Now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	codes, err := s.Promo.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	draws, err := s.Randy.List(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var activeCodes, usedCodes, activeRandy int
	for _, c := range codes {
		if c.Delivered {
			usedCodes++
		} else {
			activeCodes++
		}
	}
	for _, d := range draws {
		if d.Delivered < d.TotalSlots {
			activeRandy++
		}
	}
	perDay := make([]dayCountView, len(o.MessagesPerDay))
	for i, d := range o.MessagesPerDay {
		perDay[i] = dayCountView{Date: d.Date, Count: d.Count}
	}
	writeOK(w, "", map[string]any{
		"totalUsers":     o.TotalUsers,
		"totalMessages":  o.TotalMessages,
		"activeCodes":    activeCodes,
		"usedCodes":      usedCodes,
		"activeRandy":    activeRandy,
		"totalInvites":   o.TotalInvites,
		"activeInvites":  o.ActiveInvites,
		"topUsers":       memberViews(o.TopUsers),
		"messagesPerDay": perDay,
	})
}

// --- plans ---

func (s *Server) handlePlanList(w http.ResponseWriter, r *http.Request) {
	family := plans.Family(strings.TrimSpace(r.URL.Query().Get("family")))
	sums, err := s.Plans.ListPlans(r.Context(), family)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]planView, len(sums))
	for i, sum := range sums {
		out[i] = s.summaryView(sum)
	}
	writeOK(w, "", out)
}

func (s *Server) handlePlanGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p, err := s.Plans.GetPlan(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries, err := s.Plans.ListEntries(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	v := s.planView(p)
	v.Entries = s.entryViews(entries)
	writeOK(w, "", v)
}

func (s *Server) handlePlanReset(w http.ResponseWriter, r *http.Request) {
	if err := s.Plans.ResetPlan(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "plan deleted", nil)
}

// --- settings ---

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	all, err := s.Settings.All(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	onePerUser, err := s.Settings.Bool(r.Context(), settings.KeyPromoOnePerUser, true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	data := make(map[string]any, len(all)+1)
	for k, v := range all {
		data[k] = v
	}
	data[settings.KeyPromoOnePerUser] = onePerUser
	data["one_per_user"] = onePerUser
	writeOK(w, "", data)
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Key         string  `json:"key"`
		Value       *string `json:"value"`
		DefaultLink *string `json:"default_link"`
		OnePerUser  *bool   `json:"one_per_user"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}

	var updates [][2]string
	if body.Key != "" && body.Value != nil {
		updates = append(updates, [2]string{body.Key, *body.Value})
	}
	if body.DefaultLink != nil {
		updates = append(updates, [2]string{settings.KeyDefaultLink, *body.DefaultLink})
	}
	if body.OnePerUser != nil {
		updates = append(updates, [2]string{settings.KeyPromoOnePerUser, fmt.Sprint(*body.OnePerUser)})
	}
	if len(updates) == 0 {
		s.fail(w, r, fmt.Errorf("%w: nothing to update", internaltypes.ErrInvalidArgument))
		return
	}
	for _, u := range updates {
		if err := s.Settings.Set(r.Context(), u[0], u[1]); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeOK(w, "Settings updated successfully", nil)
}

// --- database ---

func (s *Server) handleDatabaseReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Confirm != resetPhrase {
		s.fail(w, r, fmt.Errorf("%w: type %s to confirm", internaltypes.ErrInvalidArgument, resetPhrase))
		return
	}
	if err := s.Plans.ResetAll(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "Database reset successfully", nil)
}

// --- worker contract ---

func (s *Server) handleWorkerDue(w http.ResponseWriter, r *http.Request) {
	asOf := s.Plans.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: as_of must be RFC 3339", internaltypes.ErrInvalidArgument))
			return
		}
		asOf = t
	}
	due, err := s.Plans.ListDue(r.Context(), asOf)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "", s.entryViews(due))
}

func (s *Server) handleWorkerClaim(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body struct {
		Claimant int64 `json:"claimant"`
	}
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Claimant == 0 {
		s.fail(w, r, fmt.Errorf("%w: claimant is required", internaltypes.ErrInvalidArgument))
		return
	}
	e, err := s.Plans.Claim(r.Context(), id, body.Claimant)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "claimed", s.entryView(e))
}

func (s *Server) handleWorkerDelivered(w http.ResponseWriter, r *http.Request) {
	id, err := entryIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	e, err := s.Plans.MarkDelivered(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeOK(w, "delivered", s.entryView(e))
}
