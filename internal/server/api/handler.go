package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"
	"github.com/samber/lo"

	"civicease/civicfeed/internal/database"
	"civicease/civicfeed/internal/models"
	"civicease/civicfeed/internal/server/pagination"
	"civicease/civicfeed/internal/server/storage"
)

const defaultLimit = 50
const maxLimit = 500

// Announcement is the JSON form of a post.
type Announcement struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	CategoryID   *int64     `json:"category_id,omitempty"`
	CategoryName string     `json:"category_name,omitempty"`
	Link         string     `json:"link,omitempty"`
	Description  string     `json:"description,omitempty"`
	PubDate      *time.Time `json:"pub_date,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Reminder is the JSON form of a reminder.
type Reminder struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	PostID      int64      `json:"post_id"`
	Content     string     `json:"content"`
	Enabled     bool       `json:"reminder_enabled"`
	DueAt       *time.Time `json:"reminder_at,omitempty"`
	Sent        bool       `json:"reminder_sent"`
	Quarantined bool       `json:"reminder_quarantined"`
}

// ReminderRequest is the body accepted by PUT /v1/reminders.
type ReminderRequest struct {
	UserID  int64      `json:"user_id"`
	PostID  int64      `json:"post_id"`
	Content string     `json:"content"`
	Enabled bool       `json:"reminder_enabled"`
	DueAt   *time.Time `json:"reminder_at"`
}

// ListResponse is a page of announcements.
type ListResponse struct {
	Items      []Announcement `json:"items"`
	NextCursor *string        `json:"next_cursor,omitempty"`
}

// Handler serves the query API. Loggers come from the request context.
type Handler struct {
	repo storage.Repository
	now  func() time.Time
}

// NewHandler creates a new handler instance. now supplies "now" for due-time queries.
func NewHandler(repo storage.Repository, now func() time.Time) *Handler {
	if now == nil {
		now = time.Now
	}
	return &Handler{repo: repo, now: now}
}

// ListAnnouncements handles GET /v1/announcements.
func (h *Handler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	query := r.URL.Query()

	filter := storage.AnnouncementFilter{Limit: defaultLimit}

	if s := query.Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit <= 0 || limit > maxLimit {
			log.Warn().Str("limit", s).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	if s := query.Get("category_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			log.Warn().Str("category_id", s).Msg("Invalid 'category_id' parameter")
			http.Error(w, "Invalid 'category_id' parameter", http.StatusBadRequest)
			return
		}
		filter.CategoryID = &id
	}

	if s := query.Get("cursor"); s != "" {
		c, err := pagination.Decode(s)
		if err != nil {
			log.Warn().Err(err).Str("cursor", s).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		filter.After = &c
	} else if s := query.Get("since"); s != "" {
		since, err := time.Parse(time.RFC3339, s)
		if err != nil {
			log.Warn().Str("since", s).Msg("Invalid 'since' parameter format")
			http.Error(w, "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", http.StatusBadRequest)
			return
		}
		filter.Since = &since
	}

	limit := filter.Limit
	filter.Limit++ // one extra row tells us whether another page exists

	items, err := h.repo.ListAnnouncements(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching announcements from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	resp := ListResponse{}
	if len(items) > limit {
		items = items[:limit]
		last := items[len(items)-1]
		next := pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
		resp.NextCursor = &next
	}
	resp.Items = lo.Map(items, func(a models.Announcement, _ int) Announcement { return toAnnouncement(a) })

	writeJSON(w, r, http.StatusOK, resp)
}

// GetAnnouncement handles GET /v1/announcements/{id}.
func (h *Handler) GetAnnouncement(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	a, err := h.repo.GetAnnouncement(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Announcement not found", http.StatusNotFound)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("id", id).Msg("Error loading announcement")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, toAnnouncement(*a))
}

// UserNotifications handles GET /v1/users/{id}/notifications: the user's due, unread
// notifications, newest schedule first.
func (h *Handler) UserNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}

	items, err := h.repo.DueUnreadNotifications(r.Context(), userID, h.now())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("user_id", userID).Msg("Error loading notifications")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"items": items})
}

// MarkNotificationRead handles POST /v1/notifications/{id}/read.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	err := h.repo.MarkNotificationRead(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		http.Error(w, "Notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Int64("id", id).Msg("Error marking notification read")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PutReminder handles PUT /v1/reminders. A second submission for the same user and post
// replaces the first and re-arms it.
func (h *Handler) PutReminder(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req ReminderRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		log.Warn().Err(err).Msg("Invalid reminder body")
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 || req.PostID <= 0 {
		http.Error(w, "user_id and post_id are required", http.StatusBadRequest)
		return
	}
	if req.Enabled && req.DueAt == nil {
		http.Error(w, "reminder_at is required when the reminder is enabled", http.StatusBadRequest)
		return
	}

	id, err := h.repo.SaveReminder(r.Context(), database.ReminderInput{
		UserID:  req.UserID,
		PostID:  req.PostID,
		Content: req.Content,
		Enabled: req.Enabled,
		DueAt:   req.DueAt,
	})
	if err != nil {
		log.Error().Err(err).Int64("user_id", req.UserID).Int64("post_id", req.PostID).Msg("Error saving reminder")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	saved, err := h.repo.GetReminder(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Error reloading reminder")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	log.Info().Int64("reminder_id", id).Bool("enabled", saved.Enabled).Msg("Reminder saved")
	writeJSON(w, r, http.StatusOK, toReminder(*saved))
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	s := r.PathValue("id")
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		hlog.FromRequest(r).Warn().Str("id", s).Msg("Invalid id in path")
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	log := hlog.FromRequest(r)

	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
		return
	}
	log.Debug().Int("bytes_written", len(body)).Msg("Response completed")
}

func toAnnouncement(a models.Announcement) Announcement {
	out := Announcement{
		ID:           a.ID,
		Title:        a.Title,
		CategoryName: a.CategoryName.String,
		Link:         a.Link.String,
		Description:  a.Description.String,
		CreatedAt:    a.CreatedAt,
	}
	if a.CategoryID.Valid {
		out.CategoryID = &a.CategoryID.Int64
	}
	if a.PubDate.Valid {
		out.PubDate = &a.PubDate.Time
	}
	return out
}

func toReminder(r models.Reminder) Reminder {
	out := Reminder{
		ID:          r.ID,
		UserID:      r.UserID,
		PostID:      r.PostID,
		Content:     r.Content,
		Enabled:     r.Enabled,
		Sent:        r.Sent,
		Quarantined: r.Quarantined,
	}
	if r.DueAt.Valid {
		out.DueAt = &r.DueAt.Time
	}
	return out
}
