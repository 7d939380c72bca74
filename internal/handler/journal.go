package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/ourworld/internal/service"
)

// JournalHandler serves every collection of the shared journal.
//
// Handlers here stay thin: decode the body, call one JournalService method,
// write the result. Defaults, limits and id allocation all live in the
// service. Every route is mounted behind auth.RequireAuth, so handlers can
// assume a valid session.
type JournalHandler struct {
	journal *service.JournalService
	logger  *slog.Logger
}

func NewJournalHandler(journal *service.JournalService, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{journal: journal, logger: logger}
}

// deleteWith parses {id}, runs del and answers {"success": true}.
func (h *JournalHandler) deleteWith(w http.ResponseWriter, r *http.Request, del func(id int) error) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := del(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, success)
}

// =========================================================================
// EVENTS
// =========================================================================

type eventRequest struct {
	Title       string `json:"title"`
	EventDate   string `json:"event_date"`
	Description string `json:"description"`
}

// HandleListEvents: GET /api/home/events
func (h *JournalHandler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListEvents())
}

// HandleCreateEvent: POST /api/home/events
// REQUEST BODY: {"title": "...", "event_date": "2024-02-14", "description": "..."}
func (h *JournalHandler) HandleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateEvent(r.Context(), req.Title, req.EventDate, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteEvent: DELETE /api/home/events/{id}
func (h *JournalHandler) HandleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteEvent(r.Context(), id) })
}

// =========================================================================
// BLOG
// =========================================================================

type blogPostRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Author string `json:"author"`
}

// HandleListBlogPosts: GET /api/blog (newest first)
func (h *JournalHandler) HandleListBlogPosts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListBlogPosts())
}

// HandleCreateBlogPost: POST /api/blog
func (h *JournalHandler) HandleCreateBlogPost(w http.ResponseWriter, r *http.Request) {
	var req blogPostRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateBlogPost(r.Context(), req.Title, req.Body, req.Author)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteBlogPost: DELETE /api/blog/{id}
func (h *JournalHandler) HandleDeleteBlogPost(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteBlogPost(r.Context(), id) })
}

// =========================================================================
// SPECIAL DAYS
// =========================================================================

// HandleListSpecialDays: GET /api/special-days
func (h *JournalHandler) HandleListSpecialDays(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListSpecialDays())
}

// HandleCreateSpecialDay: POST /api/special-days
// Same body as an event.
func (h *JournalHandler) HandleCreateSpecialDay(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateSpecialDay(r.Context(), req.Title, req.EventDate, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteSpecialDay: DELETE /api/special-days/{id}
func (h *JournalHandler) HandleDeleteSpecialDay(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteSpecialDay(r.Context(), id) })
}
