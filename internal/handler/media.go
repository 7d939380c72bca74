package handler

import (
	"net/http"

	"github.com/sakif/ourworld/internal/service"
	"github.com/sakif/ourworld/internal/upload"
)

// UPLOADS IN JSON:
// Files arrive inline as {"data": <base64>, "name": ..., "type": ...}
// objects. The whole body is capped by MaxBodyBytes, which therefore is
// also the largest file the app accepts.

type memoryRequest struct {
	File    *upload.FilePayload `json:"file"`
	Caption string              `json:"caption"`
}

type favoriteRequest struct {
	Song      string              `json:"song"`
	Movie     string              `json:"movie"`
	Notes     string              `json:"notes"`
	SongFile  *upload.FilePayload `json:"songFile"`
	MovieFile *upload.FilePayload `json:"movieFile"`
}

type profileRequest struct {
	Name       *string             `json:"name"`
	Bio        *string             `json:"bio"`
	AvatarFile *upload.FilePayload `json:"avatarFile"`
}

// =========================================================================
// MEMORIES
// =========================================================================

// HandleListMemories: GET /api/memories
func (h *JournalHandler) HandleListMemories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListMemories())
}

// HandleCreateMemory: POST /api/memories
// REQUEST BODY: {"file": {"data": "...", "name": "beach.png", "type": "image/png"}, "caption": "..."}
func (h *JournalHandler) HandleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateMemory(r.Context(), req.File, req.Caption)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteMemory: DELETE /api/memories/{id}
func (h *JournalHandler) HandleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteMemory(r.Context(), id) })
}

// =========================================================================
// FAVORITES
// =========================================================================

// HandleListFavorites: GET /api/favorites
func (h *JournalHandler) HandleListFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.ListFavorites())
}

// HandleCreateFavorite: POST /api/favorites
func (h *JournalHandler) HandleCreateFavorite(w http.ResponseWriter, r *http.Request) {
	var req favoriteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.journal.CreateFavorite(r.Context(), service.FavoriteInput{
		Song:      req.Song,
		Movie:     req.Movie,
		Notes:     req.Notes,
		SongFile:  req.SongFile,
		MovieFile: req.MovieFile,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleDeleteFavorite: DELETE /api/favorites/{id}
func (h *JournalHandler) HandleDeleteFavorite(w http.ResponseWriter, r *http.Request) {
	h.deleteWith(w, r, func(id int) error { return h.journal.DeleteFavorite(r.Context(), id) })
}

// =========================================================================
// PROFILE
// =========================================================================

// HandlePublicProfile is the only journal read that needs no session: the
// login page shows who the space belongs to.
//
// HTTP: GET /api/profile/public
func (h *JournalHandler) HandlePublicProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.PublicProfile())
}

// HandleGetProfile: GET /api/profile
func (h *JournalHandler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.Profile())
}

// HandleUpdateProfile: POST /api/profile
// REQUEST BODY: any of {"name": "...", "bio": "...", "avatarFile": {...}}
func (h *JournalHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	p, err := h.journal.UpdateProfile(r.Context(), service.ProfileUpdate{
		Name:   req.Name,
		Bio:    req.Bio,
		Avatar: req.AvatarFile,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
