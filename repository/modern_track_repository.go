package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"echoheritage/model"
)

// ModernTrackRepository defines data operations for modern style tracks.
type ModernTrackRepository interface {
	CreateModernTrack(ctx context.Context, mt *model.ModernTrack) (int64, error)
	UpdateModernTrack(ctx context.Context, mt *model.ModernTrack) error
	GetAllModernTracks(ctx context.Context, approvedOnly bool) ([]*model.ModernTrack, error)
	GetModernTrackByID(ctx context.Context, id int64) (*model.ModernTrack, error)
	SetApproval(ctx context.Context, id int64, approved bool) error
	DeleteByID(ctx context.Context, id int64) error
}

type mysqlModernTrackRepository struct {
	db *sql.DB
}

// NewMySQLModernTrackRepository creates a modern track repository.
func NewMySQLModernTrackRepository(db *sql.DB) ModernTrackRepository {
	return &mysqlModernTrackRepository{db: db}
}

const modernColumns = `id, category, rhythm_style, bpm, mood, modernaudio_url, isapproved, created_at`

func scanModern(row interface{ Scan(...interface{}) error }) (*model.ModernTrack, error) {
	mt := &model.ModernTrack{}
	err := row.Scan(&mt.ID, &mt.Category, &mt.RhythmStyle, &mt.BPM, &mt.Mood,
		&mt.ModernAudioURL, &mt.IsApproved, &mt.CreatedAt)
	if err != nil {
		return nil, err
	}
	return mt, nil
}

func (r *mysqlModernTrackRepository) CreateModernTrack(ctx context.Context, mt *model.ModernTrack) (int64, error) {
	query := `INSERT INTO modern_tracks (category, rhythm_style, bpm, mood, modernaudio_url, isapproved)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, mt.Category, mt.RhythmStyle, mt.BPM, mt.Mood,
		mt.ModernAudioURL, mt.IsApproved)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateModernTrack: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateModernTrack: %w", err)
	}
	return id, nil
}

// UpdateModernTrack replaces the metadata of a modern track. The audio URL is
// only replaced when a new one is provided.
func (r *mysqlModernTrackRepository) UpdateModernTrack(ctx context.Context, mt *model.ModernTrack) error {
	query := `UPDATE modern_tracks SET category = ?, rhythm_style = ?, bpm = ?, mood = ?, isapproved = ?,
		modernaudio_url = IF(? = '', modernaudio_url, ?) WHERE id = ?`
	_, err := r.db.ExecContext(ctx, query, mt.Category, mt.RhythmStyle, mt.BPM, mt.Mood, mt.IsApproved,
		mt.ModernAudioURL, mt.ModernAudioURL, mt.ID)
	if err != nil {
		return fmt.Errorf("failed to execute UpdateModernTrack for %d: %w", mt.ID, err)
	}
	return nil
}

func (r *mysqlModernTrackRepository) GetAllModernTracks(ctx context.Context, approvedOnly bool) ([]*model.ModernTrack, error) {
	query := `SELECT ` + modernColumns + ` FROM modern_tracks`
	if approvedOnly {
		query += ` WHERE isapproved = TRUE`
	}
	query += ` ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query modern tracks: %w", err)
	}
	defer rows.Close()

	out := make([]*model.ModernTrack, 0)
	for rows.Next() {
		mt, err := scanModern(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan modern track: %w", err)
		}
		out = append(out, mt)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in GetAllModernTracks: %w", err)
	}
	return out, nil
}

// GetModernTrackByID retrieves one modern track. A missing row propagates
// sql.ErrNoRows.
func (r *mysqlModernTrackRepository) GetModernTrackByID(ctx context.Context, id int64) (*model.ModernTrack, error) {
	query := `SELECT ` + modernColumns + ` FROM modern_tracks WHERE id = ?`
	mt, err := scanModern(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("modern track %d: %w", id, sql.ErrNoRows)
		}
		return nil, fmt.Errorf("failed to scan modern track %d: %w", id, err)
	}
	return mt, nil
}

func (r *mysqlModernTrackRepository) SetApproval(ctx context.Context, id int64, approved bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE modern_tracks SET isapproved = ? WHERE id = ?`, approved, id); err != nil {
		return fmt.Errorf("failed to update approval for modern track %d: %w", id, err)
	}
	return nil
}

func (r *mysqlModernTrackRepository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM modern_tracks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete modern track %d: %w", id, err)
	}
	return nil
}
