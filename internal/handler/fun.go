package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/sakif/ourworld/internal/apperror"
)

// flexibleID accepts an id sent either as a JSON number or as a numeric
// string. The browser reads option ids from data-* attributes, which are
// always strings.
type flexibleID int

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*f = flexibleID(n)
	return nil
}

type voteRequest struct {
	OptionID *flexibleID `json:"optionId"`
}

// HandleFun returns the wheel, quiz and polls.
//
// HTTP: GET /api/fun
func (h *JournalHandler) HandleFun(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.journal.Fun())
}

// HandleVote records one vote and returns the updated poll.
//
// HTTP: POST /api/fun/polls/{id}/vote
// REQUEST BODY: {"optionId": 2} or {"optionId": "2"}
func (h *JournalHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	pollID, err := idParam(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var req voteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OptionID == nil {
		writeError(w, apperror.ValidationFailed("optionId", "optionId is required"))
		return
	}

	poll, err := h.journal.Vote(r.Context(), pollID, int(*req.OptionID))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, poll)
}
