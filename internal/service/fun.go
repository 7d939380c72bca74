package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/model"
)

// Fun returns the wheel, quiz and polls.
func (s *JournalService) Fun() model.Fun {
	return s.store.Snapshot().Fun
}

// Vote adds one vote to an option of a poll and returns the updated poll.
func (s *JournalService) Vote(ctx context.Context, pollID, optionID int) (model.Poll, error) {
	var poll model.Poll
	err := s.store.Update(ctx, func(doc *model.Document) error {
		p := slices.IndexFunc(doc.Fun.Polls, func(p model.Poll) bool { return p.ID == pollID })
		if p < 0 {
			return apperror.NotFound("poll", pollID)
		}
		options := doc.Fun.Polls[p].Options
		o := slices.IndexFunc(options, func(o model.PollOption) bool { return o.ID == optionID })
		if o < 0 {
			return apperror.NotFound("poll option", optionID)
		}
		options[o].Votes++
		poll = doc.Fun.Polls[p]
		return nil
	})
	if err != nil {
		return model.Poll{}, fmt.Errorf("voting: %w", err)
	}
	s.logger.Info("poll vote recorded", slog.Int("poll", pollID), slog.Int("option", optionID))
	return poll, nil
}
