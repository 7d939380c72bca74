package handler

import (
	"net/http"
)

type dateIdeaRequest struct {
	Title  string `json:"title"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

// dateIdeaPatch uses pointers so "field absent" and "field set to empty"
// can be told apart.
type dateIdeaPatch struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

type bucketItemRequest struct {
	Title string `json:"title"`
}

// HandleDates returns ideas and bucket list in one response.
//
// HTTP: GET /api/dates
// RESPONSE: {"ideas": [...], "bucket": [...]}
func (h *JournalHandler) HandleDates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.Dates())
}

// HandleListDateIdeas: GET /api/dates/ideas
func (h *JournalHandler) HandleListDateIdeas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListDateIdeas())
}

// HandleCreateDateIdea: POST /api/dates/ideas
func (h *JournalHandler) HandleCreateDateIdea(w http.ResponseWriter, r *http.Request) {
	var req dateIdeaRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateDateIdea(r.Context(), req.Title, req.Status, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleUpdateDateIdea: PATCH /api/dates/ideas/{id}
// REQUEST BODY: {"status": "Done"} and/or {"notes": "..."}
func (h *JournalHandler) HandleUpdateDateIdea(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	var req dateIdeaPatch
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.UpdateDateIdea(r.Context(), id, req.Status, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteDateIdea: DELETE /api/dates/ideas/{id}
func (h *JournalHandler) HandleDeleteDateIdea(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteDateIdea(r.Context(), id) })
}

// HandleListBucketItems: GET /api/dates/bucket
func (h *JournalHandler) HandleListBucketItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListBucketItems())
}

// HandleCreateBucketItem: POST /api/dates/bucket
func (h *JournalHandler) HandleCreateBucketItem(w http.ResponseWriter, r *http.Request) {
	var req bucketItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateBucketItem(r.Context(), req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleToggleBucketItem flips the completed flag. The request body, if
// any, is ignored.
//
// HTTP: PATCH|PUT /api/dates/bucket/{id} and /api/dates/bucket/{id}/toggle
func (h *JournalHandler) HandleToggleBucketItem(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := h.journal.ToggleBucketItem(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteBucketItem: DELETE /api/dates/bucket/{id}
func (h *JournalHandler) HandleDeleteBucketItem(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteBucketItem(r.Context(), id) })
}
