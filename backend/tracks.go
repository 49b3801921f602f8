package backend

import (
	"context"
	"errors"
	"net/http"

	"Tunedrop/logger"
	"Tunedrop/model"
	"Tunedrop/repository"
	"Tunedrop/schema"
	"Tunedrop/storage"
)

var defaultObjectName = storage.NewObjectName

// SearchSongs returns exposed tracks whose full-text document matches any
// word of query. A non-empty tags slice must be contained in the track's tags.
func (b *Backend) SearchSongs(ctx context.Context, query string, tags []string) ([]model.TrackSummary, error) {
	search := CreateSearchString(query)
	if search == "" {
		return nil, ErrSearchQueryMissing
	}
	tsquery := QuoteSearchString(search)

	songs, err := b.tracks.Search(ctx, tsquery, tags)
	if err != nil {
		logger.Error("[Search] query failed", logger.String("tsquery", tsquery), logger.ErrorField(err))
		return nil, toError(err)
	}
	return songs, nil
}

// GetSong returns one exposed track with its uploader's username. A failed
// username lookup leaves the username empty.
func (b *Backend) GetSong(ctx context.Context, id string) (*model.TrackDetail, error) {
	track, err := b.tracks.GetExposed(ctx, id)
	if err != nil {
		return nil, toError(err)
	}

	detail := &model.TrackDetail{
		ID:         track.ID,
		Name:       track.Name,
		Tags:       track.Tags,
		UploadedAt: track.UploadedAt,
		CoverPath:  track.CoverPath,
		UploaderID: track.UploaderID,
		Length:     track.Length,
	}
	username, err := b.profiles.UsernameByID(ctx, track.UploaderID)
	if err != nil {
		logger.Warn("[GetSong] uploader lookup failed",
			logger.String("trackId", id),
			logger.String("uploaderId", track.UploaderID),
			logger.ErrorField(err))
	} else {
		detail.Username = username
	}
	return detail, nil
}

// GetSongAudio signs a URL for an exposed track's audio object.
func (b *Backend) GetSongAudio(ctx context.Context, id string) (string, error) {
	audioPath, err := b.tracks.GetExposedAudioPath(ctx, id)
	if err != nil {
		return "", toError(err)
	}
	if audioPath == "" {
		return "", ErrNoAudio
	}

	url, err := b.objects.SignedURL(ctx, b.opts.AudioBucket, audioPath, AudioURLExpiry)
	if err != nil {
		logger.Error("[GetSongAudio] signing failed", logger.String("trackId", id), logger.ErrorField(err))
		e := toError(err)
		return "", &Error{Message: "Couldn't sign the audio url: " + e.Message, Status: e.Status, Code: "signed_url_failed", Err: err}
	}
	return url, nil
}

func createFTS(username, name string) string {
	return username + " " + name
}

// UploadSongDetails creates a draft track owned by user and returns its id.
func (b *Backend) UploadSongDetails(ctx context.Context, user *model.AuthUser, details schema.SongTempUpload) (string, error) {
	if user == nil || user.ID == "" {
		return "", ErrUnauthenticated
	}

	username, err := b.profiles.UsernameByID(ctx, user.ID)
	if err != nil {
		logger.Error("[UploadDetails] uploader lookup failed", logger.String("userId", user.ID), logger.ErrorField(err))
		return "", toError(err)
	}

	name := deref(details.Name)
	track := &model.Track{
		Name:       name,
		Tags:       details.Tags,
		FTS:        createFTS(username, name),
		UploaderID: user.ID,
		Exposed:    false,
	}
	id, err := b.tracks.Create(ctx, track)
	if err != nil {
		logger.Error("[UploadDetails] insert failed", logger.String("userId", user.ID), logger.ErrorField(err))
		return "", toError(err)
	}
	logger.Info("[UploadDetails] draft track created", logger.String("trackId", id), logger.String("userId", user.ID))
	return id, nil
}

// UploadTrackAudio stores the audio file and records its object name and
// duration on the track. Re-uploading overwrites both. If the row update
// fails the stored object is removed again.
func (b *Backend) UploadTrackAudio(ctx context.Context, id string, file *model.UploadedFile) error {
	if id == "" {
		return ErrMissingID
	}

	length, err := b.durations.Duration(ctx, file.Data)
	if err != nil {
		logger.Warn("[UploadAudio] duration extraction failed",
			logger.String("trackId", id),
			logger.String("file", file.Name),
			logger.ErrorField(err))
		return &Error{Message: "Couldn't read the audio duration!", Status: http.StatusUnprocessableEntity, Err: err}
	}

	path, err := b.objects.Upload(ctx, b.opts.AudioBucket, b.opts.NewObjectName(file.Name), file.Data, file.ContentType)
	if err != nil {
		logger.Error("[UploadAudio] store failed", logger.String("trackId", id), logger.ErrorField(err))
		return toError(err)
	}

	if err := b.tracks.UpdateAudio(ctx, id, path, length); err != nil {
		logger.Error("[UploadAudio] row update failed", logger.String("trackId", id), logger.ErrorField(err))
		b.removeObject(ctx, b.opts.AudioBucket, path)
		return toError(err)
	}

	logger.Info("[UploadAudio] audio stored",
		logger.String("trackId", id),
		logger.String("path", path),
		logger.Float64("length", length))
	return nil
}

// UploadTrackCoverImage stores the cover image and records its object name
// on the track.
func (b *Backend) UploadTrackCoverImage(ctx context.Context, id string, file *model.UploadedFile) error {
	if id == "" {
		return ErrMissingID
	}

	path, err := b.objects.Upload(ctx, b.opts.CoverBucket, b.opts.NewObjectName(file.Name), file.Data, file.ContentType)
	if err != nil {
		logger.Error("[UploadCover] store failed", logger.String("trackId", id), logger.ErrorField(err))
		return toError(err)
	}

	if err := b.tracks.UpdateCover(ctx, id, path); err != nil {
		logger.Error("[UploadCover] row update failed", logger.String("trackId", id), logger.ErrorField(err))
		b.removeObject(ctx, b.opts.CoverBucket, path)
		return toError(err)
	}
	return nil
}

// FinalizeTrackUpload exposes the track. Audio and cover are not required
// unless RequireMediaOnFinalize is set.
func (b *Backend) FinalizeTrackUpload(ctx context.Context, user *model.AuthUser, id string) (string, error) {
	if id == "" {
		return "", ErrMissingID
	}

	if b.opts.RequireMediaOnFinalize {
		track, err := b.tracks.GetByID(ctx, id)
		if err != nil {
			return "", toError(err)
		}
		if track.AudioPath == nil || *track.AudioPath == "" {
			return "", ErrNoAudio
		}
	}

	if err := b.tracks.Expose(ctx, id); err != nil {
		if !errors.Is(err, repository.ErrTrackNotFound) {
			logger.Error("[Finalize] expose failed", logger.String("trackId", id), logger.ErrorField(err))
		}
		return "", toError(err)
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}
	logger.Info("[Finalize] track exposed", logger.String("trackId", id), logger.String("userId", userID))
	return id, nil
}

func (b *Backend) removeObject(ctx context.Context, bucket, name string) {
	if err := b.objects.Remove(ctx, bucket, name); err != nil {
		logger.Warn("[Storage] orphaned object left behind",
			logger.String("bucket", bucket),
			logger.String("object", name),
			logger.ErrorField(err))
	}
}
