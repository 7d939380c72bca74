package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/sakif/ourworld/internal/apperror"
	"github.com/sakif/ourworld/internal/model"
	"github.com/sakif/ourworld/internal/upload"
)

// Records in this file own upload blobs. The blob and the record that
// references it are written in two steps; see the package doc for the
// ordering.

// =========================================================================
// MEMORIES
// =========================================================================

func (s *JournalService) ListMemories() []model.Memory {
	return s.store.Snapshot().Memories
}

// CreateMemory stores an image and appends a memory pointing to it.
// The caption is cut to MaxCaptionLength characters.
func (s *JournalService) CreateMemory(ctx context.Context, file *upload.FilePayload, caption string) (model.Memory, error) {
	if file == nil {
		return model.Memory{}, apperror.InvalidAsset("file", "an image is required")
	}
	asset, err := s.uploads.SaveImage(*file)
	if err != nil {
		return model.Memory{}, err
	}

	var rec model.Memory
	err = s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.Memory{
			ID:           doc.AllocateID(model.CollectionMemories),
			Filename:     asset.Filename,
			OriginalName: asset.OriginalName,
			MIME:         asset.MIME,
			Caption:      truncate(caption, MaxCaptionLength),
			UploadedAt:   timestamp(s.now()),
		}
		doc.Memories = append(doc.Memories, rec)
		return nil
	})
	if err != nil {
		s.uploads.RemoveAll(&asset)
		return model.Memory{}, fmt.Errorf("creating memory: %w", err)
	}
	s.logger.Info("memory created", slog.Int("id", rec.ID), slog.String("filename", rec.Filename))
	return rec, nil
}

// DeleteMemory removes the memory and then its image.
func (s *JournalService) DeleteMemory(ctx context.Context, id int) error {
	var removed model.Memory
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.Memories, removed, err = removeByID(doc.Memories, id, "memory")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting memory: %w", err)
	}
	s.uploads.RemoveAll(removed.Asset())
	s.logger.Info("memory deleted", slog.Int("id", id))
	return nil
}

// =========================================================================
// FAVORITES
// =========================================================================

// FavoriteInput is a new favorite. SongFile and MovieFile are optional.
type FavoriteInput struct {
	Song      string
	Movie     string
	Notes     string
	SongFile  *upload.FilePayload
	MovieFile *upload.FilePayload
}

func (s *JournalService) ListFavorites() []model.Favorite {
	return s.store.Snapshot().Favorites
}

// CreateFavorite stores the optional files and puts the favorite first.
func (s *JournalService) CreateFavorite(ctx context.Context, in FavoriteInput) (model.Favorite, error) {
	song, err := s.saveOptional(in.SongFile)
	if err != nil {
		return model.Favorite{}, err
	}
	movie, err := s.saveOptional(in.MovieFile)
	if err != nil {
		s.uploads.RemoveAll(song)
		return model.Favorite{}, err
	}

	var rec model.Favorite
	err = s.store.Update(ctx, func(doc *model.Document) error {
		rec = model.Favorite{
			ID:          doc.AllocateID(model.CollectionFavorites),
			Song:        in.Song,
			Movie:       in.Movie,
			Notes:       in.Notes,
			SongUpload:  song,
			MovieUpload: movie,
			CreatedAt:   timestamp(s.now()),
		}
		doc.Favorites = slices.Insert(doc.Favorites, 0, rec)
		return nil
	})
	if err != nil {
		s.uploads.RemoveAll(song, movie)
		return model.Favorite{}, fmt.Errorf("creating favorite: %w", err)
	}
	s.logger.Info("favorite created", slog.Int("id", rec.ID))
	return rec, nil
}

// DeleteFavorite removes the favorite and then both of its files.
func (s *JournalService) DeleteFavorite(ctx context.Context, id int) error {
	var removed model.Favorite
	err := s.store.Update(ctx, func(doc *model.Document) error {
		var err error
		doc.Favorites, removed, err = removeByID(doc.Favorites, id, "favorite")
		return err
	})
	if err != nil {
		return fmt.Errorf("deleting favorite: %w", err)
	}
	s.uploads.RemoveAll(removed.Assets()...)
	s.logger.Info("favorite deleted", slog.Int("id", id))
	return nil
}

func (s *JournalService) saveOptional(p *upload.FilePayload) (*model.Asset, error) {
	if p == nil {
		return nil, nil
	}
	asset, err := s.uploads.Save(*p)
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

// =========================================================================
// PROFILE
// =========================================================================

// PublicProfile is the profile as shown on the login page. AvatarData
// inlines the avatar image so the page needs no authenticated request.
type PublicProfile struct {
	Name       string       `json:"name"`
	Bio        string       `json:"bio"`
	Avatar     *model.Asset `json:"avatar"`
	AvatarData *string      `json:"avatarData"`
}

func (s *JournalService) Profile() model.Profile {
	return s.store.Snapshot().Profile
}

// PublicProfile never fails: a missing avatar file only leaves AvatarData
// empty.
func (s *JournalService) PublicProfile() PublicProfile {
	p := s.store.Snapshot().Profile
	out := PublicProfile{Name: p.Name, Bio: p.Bio, Avatar: p.Avatar}
	if data, ok := s.uploads.DataURL(p.Avatar); ok {
		out.AvatarData = &data
	}
	return out
}

// ProfileUpdate carries the fields to change. Nil means "leave as is"; an
// empty name is ignored as well.
type ProfileUpdate struct {
	Name   *string
	Bio    *string
	Avatar *upload.FilePayload
}

// UpdateProfile applies the update. A new avatar replaces the old one,
// whose file is removed once the new profile is saved.
func (s *JournalService) UpdateProfile(ctx context.Context, in ProfileUpdate) (model.Profile, error) {
	var avatar *model.Asset
	if in.Avatar != nil {
		a, err := s.uploads.SaveImage(*in.Avatar)
		if err != nil {
			return model.Profile{}, err
		}
		avatar = &a
	}

	var (
		updated model.Profile
		old     *model.Asset
	)
	err := s.store.Update(ctx, func(doc *model.Document) error {
		p := doc.Profile
		if in.Name != nil && *in.Name != "" {
			p.Name = truncate(*in.Name, MaxProfileNameLength)
		}
		if in.Bio != nil {
			p.Bio = truncate(*in.Bio, MaxBioLength)
		}
		if avatar != nil {
			old = p.Avatar
			p.Avatar = avatar
		}
		doc.Profile = p
		updated = p
		return nil
	})
	if err != nil {
		s.uploads.RemoveAll(avatar)
		return model.Profile{}, fmt.Errorf("updating profile: %w", err)
	}
	s.uploads.RemoveAll(old)
	s.logger.Info("profile updated", slog.Bool("avatar_replaced", avatar != nil))
	return updated, nil
}
