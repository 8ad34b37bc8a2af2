package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"echoheritage/db"
	"echoheritage/model"
)

// ErrDuplicateTrack is returned when a sound_id is already registered.
var ErrDuplicateTrack = errors.New("track id already registered")

// TrackRepository defines the interface for heritage track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) (int64, error)
	UpdateTrack(ctx context.Context, track *model.Track) error
	GetTrackBySoundID(ctx context.Context, soundID string) (*model.Track, error)
	GetAllTracks(ctx context.Context) ([]*model.Track, error)
	DeleteTrack(ctx context.Context, soundID string) error
	SetApproval(ctx context.Context, soundID string, approved bool) (*model.Track, error)
	IncrementFusionCount(ctx context.Context, soundID string) error
	SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error)
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = `id, sound_id, title, performer, category, community, region, context, country,
	description, contributor, sound_track_url, album_file_url, isapproved, fusion_count, created_at, updated_at`

func scanTrack(row interface{ Scan(...interface{}) error }) (*model.Track, error) {
	t := &model.Track{}
	err := row.Scan(&t.ID, &t.SoundID, &t.Title, &t.Performer, &t.Category, &t.Community, &t.Region,
		&t.Context, &t.Country, &t.Description, &t.Contributor, &t.SoundTrackURL, &t.AlbumFileURL,
		&t.IsApproved, &t.FusionCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) (int64, error) {
	query := `INSERT INTO tracks (sound_id, title, performer, category, community, region, context, country,
		description, contributor, sound_track_url, album_file_url, isapproved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	res, err := stmt.ExecContext(ctx, track.SoundID, track.Title, track.Performer, track.Category,
		track.Community, track.Region, track.Context, track.Country, track.Description,
		track.Contributor, track.SoundTrackURL, track.AlbumFileURL, track.IsApproved, now, now)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "duplicate entry") {
			return 0, ErrDuplicateTrack
		}
		return 0, fmt.Errorf("failed to execute CreateTrack: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateTrack: %w", err)
	}
	return id, nil
}

// UpdateTrack replaces the mutable fields of a track identified by sound_id.
// Empty URL fields are left untouched so an edit without new files keeps the
// existing blobs.
func (r *mysqlTrackRepository) UpdateTrack(ctx context.Context, track *model.Track) error {
	query := `UPDATE tracks SET title = ?, performer = ?, category = ?, community = ?, region = ?,
		context = ?, country = ?, description = ?,
		sound_track_url = IF(? = '', sound_track_url, ?),
		album_file_url = IF(? = '', album_file_url, ?),
		updated_at = ? WHERE sound_id = ?`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for UpdateTrack: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, track.Title, track.Performer, track.Category, track.Community,
		track.Region, track.Context, track.Country, track.Description,
		track.SoundTrackURL, track.SoundTrackURL, track.AlbumFileURL, track.AlbumFileURL,
		time.Now(), track.SoundID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateTrack for sound_id %s: %w", track.SoundID, err)
	}
	return nil
}

// GetTrackBySoundID retrieves a track by its sound_id. A missing row
// propagates sql.ErrNoRows so callers can map it to 404.
func (r *mysqlTrackRepository) GetTrackBySoundID(ctx context.Context, soundID string) (*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks WHERE sound_id = ?`
	track, err := scanTrack(r.DB.QueryRowContext(ctx, query, soundID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("track %s: %w", soundID, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to scan track by sound_id %s: %w", soundID, err)
	}
	return track, nil
}

// GetAllTracks retrieves all tracks from the database.
func (r *mysqlTrackRepository) GetAllTracks(ctx context.Context) ([]*model.Track, error) {
	query := `SELECT ` + trackColumns + ` FROM tracks ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks: %w", err)
	}
	defer rows.Close()

	tracks := make([]*model.Track, 0)
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track in GetAllTracks: %w", err)
		}
		tracks = append(tracks, track)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllTracks: %w", err)
	}

	return tracks, nil
}

// DeleteTrack removes a track row.
func (r *mysqlTrackRepository) DeleteTrack(ctx context.Context, soundID string) error {
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM tracks WHERE sound_id = ?`, soundID); err != nil {
		return fmt.Errorf("failed to delete track %s: %w", soundID, err)
	}
	return nil
}

// SetApproval flips moderation state and returns the updated track.
func (r *mysqlTrackRepository) SetApproval(ctx context.Context, soundID string, approved bool) (*model.Track, error) {
	_, err := r.DB.ExecContext(ctx, `UPDATE tracks SET isapproved = ?, updated_at = ? WHERE sound_id = ?`,
		approved, time.Now(), soundID)
	if err != nil {
		return nil, fmt.Errorf("failed to update approval for track %s: %w", soundID, err)
	}
	return r.GetTrackBySoundID(ctx, soundID)
}

// IncrementFusionCount bumps the fusion counter of a heritage track.
func (r *mysqlTrackRepository) IncrementFusionCount(ctx context.Context, soundID string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE tracks SET fusion_count = fusion_count + 1 WHERE sound_id = ?`, soundID)
	if err != nil {
		return fmt.Errorf("failed to increment fusion count for track %s: %w", soundID, err)
	}
	return nil
}

// SummaryBySoundID fetches the displayable subset of a track for duplicate
// rejections. Returns nil when the track row is missing.
func (r *mysqlTrackRepository) SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	query := `SELECT sound_id, title, performer, album_file_url, sound_track_url FROM tracks WHERE sound_id = ?`
	s := &model.TrackSummary{}
	err := r.DB.QueryRowContext(ctx, query, soundID).Scan(&s.SoundID, &s.Title, &s.Performer, &s.AlbumFileURL, &s.SoundTrackURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan track summary for sound_id %s: %w", soundID, err)
	}
	return s, nil
}
