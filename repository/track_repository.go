package repository

import (
	"context"
	"errors"
	"fmt"

	"Tunedrop/logger"
	"Tunedrop/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTrackNotFound is returned when no row matches, including rows that
// exist but are not exposed yet.
var ErrTrackNotFound = errors.New("track not found")

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	// Search runs a tsquery string against exposed tracks. A non-empty tags
	// slice must be fully contained in a track's tags.
	Search(ctx context.Context, tsquery string, tags []string) ([]model.TrackSummary, error)
	GetExposed(ctx context.Context, id string) (*model.Track, error)
	GetExposedAudioPath(ctx context.Context, id string) (string, error)
	GetByID(ctx context.Context, id string) (*model.Track, error)
	Create(ctx context.Context, track *model.Track) (string, error)
	UpdateAudio(ctx context.Context, id, audioPath string, length float64) error
	UpdateCover(ctx context.Context, id, coverPath string) error
	Expose(ctx context.Context, id string) error
}

type postgresTrackRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTrackRepository creates a TrackRepository backed by pgx.
func NewPostgresTrackRepository(pool *pgxpool.Pool) TrackRepository {
	return &postgresTrackRepository{pool: pool}
}

const trackColumns = `id::text, name, tags, length, cover_path, audio_path, uploaded_at, uploader_id::text, fts, exposed`

func scanTrack(row pgx.Row) (*model.Track, error) {
	t := &model.Track{}
	err := row.Scan(&t.ID, &t.Name, &t.Tags, &t.Length, &t.CoverPath, &t.AudioPath, &t.UploadedAt, &t.UploaderID, &t.FTS, &t.Exposed)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTrackRepository) Search(ctx context.Context, tsquery string, tags []string) ([]model.TrackSummary, error) {
	query := `SELECT id::text, name, tags, uploaded_at, length, cover_path
	          FROM tracks
	          WHERE to_tsvector('simple', fts) @@ to_tsquery('simple', $1) AND exposed = true`
	args := []any{tsquery}
	if len(tags) > 0 {
		query += ` AND tags @> $2`
		args = append(args, tags)
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search tracks: %w", err)
	}
	defer rows.Close()

	songs := make([]model.TrackSummary, 0)
	for rows.Next() {
		var s model.TrackSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Tags, &s.UploadedAt, &s.Length, &s.CoverPath); err != nil {
			return nil, fmt.Errorf("failed to scan track in Search: %w", err)
		}
		songs = append(songs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in Search: %w", err)
	}
	return songs, nil
}

func (r *postgresTrackRepository) GetExposed(ctx context.Context, id string) (*model.Track, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1 AND exposed = true LIMIT 1`, id)
	t, err := scanTrack(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get exposed track %s: %w", id, err)
	}
	return t, nil
}

func (r *postgresTrackRepository) GetExposedAudioPath(ctx context.Context, id string) (string, error) {
	var audioPath *string
	err := r.pool.QueryRow(ctx, `SELECT audio_path FROM tracks WHERE id = $1 AND exposed = true LIMIT 1`, id).Scan(&audioPath)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTrackNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get audio path for track %s: %w", id, err)
	}
	if audioPath == nil {
		return "", nil
	}
	return *audioPath, nil
}

func (r *postgresTrackRepository) GetByID(ctx context.Context, id string) (*model.Track, error) {
	t, err := scanTrack(r.pool.QueryRow(ctx, `SELECT `+trackColumns+` FROM tracks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTrackNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get track %s: %w", id, err)
	}
	return t, nil
}

func (r *postgresTrackRepository) Create(ctx context.Context, track *model.Track) (string, error) {
	tags := track.Tags
	if tags == nil {
		tags = []string{}
	}
	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tracks (name, tags, fts, uploader_id, exposed)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id::text, uploaded_at`,
		track.Name, tags, track.FTS, track.UploaderID, track.Exposed,
	).Scan(&id, &track.UploadedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert track: %w", err)
	}
	track.ID = id
	logger.Debug("[Tracks] track row created", logger.String("trackId", id), logger.String("name", track.Name))
	return id, nil
}

func (r *postgresTrackRepository) exec(ctx context.Context, op, id, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to execute %s for track %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTrackNotFound
	}
	return nil
}

func (r *postgresTrackRepository) UpdateAudio(ctx context.Context, id, audioPath string, length float64) error {
	return r.exec(ctx, "UpdateAudio", id, `UPDATE tracks SET audio_path = $1, length = $2 WHERE id = $3`, audioPath, length, id)
}

func (r *postgresTrackRepository) UpdateCover(ctx context.Context, id, coverPath string) error {
	return r.exec(ctx, "UpdateCover", id, `UPDATE tracks SET cover_path = $1 WHERE id = $2`, coverPath, id)
}

func (r *postgresTrackRepository) Expose(ctx context.Context, id string) error {
	return r.exec(ctx, "Expose", id, `UPDATE tracks SET exposed = true WHERE id = $1`, id)
}
