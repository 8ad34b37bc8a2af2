package repository

import (
	"context"
	"database/sql"
	"fmt"

	"echoheritage/model"
)

// FusedTrackRepository defines data operations for saved fusion results.
type FusedTrackRepository interface {
	CreateFusedTrack(ctx context.Context, ft *model.FusedTrack) (int64, error)
	History(ctx context.Context) ([]*model.FusedTrack, error)
	DeleteByID(ctx context.Context, id int64) error
	// ExistingFusedURL returns the stored result URL for a heritage/modern
	// pair, or "" when the pair has not been fused yet.
	ExistingFusedURL(ctx context.Context, soundID, modernSound string) (string, error)
	// SummaryBySoundID synthesizes a displayable summary for a fusion match in
	// the duplicate scan. Returns nil when no fused track exists.
	SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error)
}

type mysqlFusedTrackRepository struct {
	db *sql.DB
}

// NewMySQLFusedTrackRepository creates a fused track repository.
func NewMySQLFusedTrackRepository(db *sql.DB) FusedTrackRepository {
	return &mysqlFusedTrackRepository{db: db}
}

func (r *mysqlFusedTrackRepository) CreateFusedTrack(ctx context.Context, ft *model.FusedTrack) (int64, error) {
	query := `INSERT INTO fused_tracks (sound_id, heritage_sound, modern_sound, user_mail, fusedtrack_url,
		community, gate, clarity, strength, temp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.db.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement for CreateFusedTrack: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.ExecContext(ctx, ft.SoundID, ft.HeritageSound, ft.ModernSound, ft.UserMail,
		ft.FusedTrackURL, ft.Community, ft.Gate, ft.Clarity, ft.Strength, ft.Temp)
	if err != nil {
		return 0, fmt.Errorf("failed to execute CreateFusedTrack: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for CreateFusedTrack: %w", err)
	}
	return id, nil
}

func (r *mysqlFusedTrackRepository) History(ctx context.Context) ([]*model.FusedTrack, error) {
	query := `SELECT id, sound_id, heritage_sound, modern_sound, user_mail, fusedtrack_url, community,
		gate, clarity, strength, temp, created_at FROM fused_tracks ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query fused tracks: %w", err)
	}
	defer rows.Close()

	out := make([]*model.FusedTrack, 0)
	for rows.Next() {
		ft := &model.FusedTrack{}
		if err := rows.Scan(&ft.ID, &ft.SoundID, &ft.HeritageSound, &ft.ModernSound, &ft.UserMail,
			&ft.FusedTrackURL, &ft.Community, &ft.Gate, &ft.Clarity, &ft.Strength, &ft.Temp, &ft.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan fused track: %w", err)
		}
		out = append(out, ft)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration in History: %w", err)
	}
	return out, nil
}

func (r *mysqlFusedTrackRepository) DeleteByID(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM fused_tracks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete fused track %d: %w", id, err)
	}
	return nil
}

func (r *mysqlFusedTrackRepository) ExistingFusedURL(ctx context.Context, soundID, modernSound string) (string, error) {
	var url string
	err := r.db.QueryRowContext(ctx,
		`SELECT fusedtrack_url FROM fused_tracks WHERE sound_id = ? AND modern_sound = ? LIMIT 1`,
		soundID, modernSound).Scan(&url)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check fused pair (%s, %s): %w", soundID, modernSound, err)
	}
	return url, nil
}

func (r *mysqlFusedTrackRepository) SummaryBySoundID(ctx context.Context, soundID string) (*model.TrackSummary, error) {
	var heritageSound, fusedURL string
	err := r.db.QueryRowContext(ctx,
		`SELECT heritage_sound, fusedtrack_url FROM fused_tracks WHERE sound_id = ? LIMIT 1`,
		soundID).Scan(&heritageSound, &fusedURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan fused summary for sound_id %s: %w", soundID, err)
	}
	return &model.TrackSummary{
		SoundID:       soundID,
		Title:         heritageSound,
		Performer:     "AI Fusion Result",
		AlbumFileURL:  "/fuse.png",
		SoundTrackURL: fusedURL,
	}, nil
}
