package repository

import (
	"context"
	"fmt"

	"echoheritage/model"

	"gorm.io/gorm"
)

// FingerprintRepository manages the acoustic fingerprint corpus.
type FingerprintRepository interface {
	// AllFingerprints returns the full corpus, heritage records before fusion
	// records. The similarity scan depends on this ordering: the first match
	// at-or-above threshold wins, so heritage matches take precedence.
	AllFingerprints(ctx context.Context) ([]model.FingerprintRecord, error)
	UpsertHeritage(ctx context.Context, soundID string, data model.FingerprintData) error
	InsertFusion(ctx context.Context, soundID string, data model.FingerprintData) error
	DeleteHeritage(ctx context.Context, soundID string) error
	DeleteFusion(ctx context.Context, soundID string) error
}

type gormFingerprintRepository struct {
	db *gorm.DB
}

// NewGormFingerprintRepository creates a fingerprint repository backed by GORM.
func NewGormFingerprintRepository(db *gorm.DB) FingerprintRepository {
	return &gormFingerprintRepository{db: db}
}

func (r *gormFingerprintRepository) AllFingerprints(ctx context.Context) ([]model.FingerprintRecord, error) {
	var heritage []model.FingerprintRecord
	if err := r.db.WithContext(ctx).
		Where("source_kind = ?", model.SourceHeritage).
		Order("id ASC").
		Find(&heritage).Error; err != nil {
		return nil, fmt.Errorf("failed to load heritage fingerprints: %w", err)
	}

	var fusion []model.FingerprintRecord
	if err := r.db.WithContext(ctx).
		Where("source_kind = ?", model.SourceFusion).
		Order("id ASC").
		Find(&fusion).Error; err != nil {
		return nil, fmt.Errorf("failed to load fusion fingerprints: %w", err)
	}

	return append(heritage, fusion...), nil
}

// UpsertHeritage replaces the heritage fingerprint of a track, creating the
// row on first upload. One heritage record per sound_id.
func (r *gormFingerprintRepository) UpsertHeritage(ctx context.Context, soundID string, data model.FingerprintData) error {
	var existing model.FingerprintRecord
	err := r.db.WithContext(ctx).
		Where("sound_id = ? AND source_kind = ?", soundID, model.SourceHeritage).
		First(&existing).Error
	switch {
	case err == nil:
		existing.FingerprintData = data
		if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
			return fmt.Errorf("failed to update heritage fingerprint for %s: %w", soundID, err)
		}
		return nil
	case err == gorm.ErrRecordNotFound:
		rec := model.FingerprintRecord{
			SoundID:         soundID,
			SourceKind:      model.SourceHeritage,
			FingerprintData: data,
		}
		if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
			return fmt.Errorf("failed to create heritage fingerprint for %s: %w", soundID, err)
		}
		return nil
	default:
		return fmt.Errorf("failed to look up heritage fingerprint for %s: %w", soundID, err)
	}
}

// InsertFusion appends a fusion fingerprint. A heritage track may own several,
// one per saved fusion result.
func (r *gormFingerprintRepository) InsertFusion(ctx context.Context, soundID string, data model.FingerprintData) error {
	rec := model.FingerprintRecord{
		SoundID:         soundID,
		SourceKind:      model.SourceFusion,
		FingerprintData: data,
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("failed to create fusion fingerprint for %s: %w", soundID, err)
	}
	return nil
}

func (r *gormFingerprintRepository) DeleteHeritage(ctx context.Context, soundID string) error {
	if err := r.db.WithContext(ctx).
		Where("sound_id = ? AND source_kind = ?", soundID, model.SourceHeritage).
		Delete(&model.FingerprintRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete heritage fingerprint for %s: %w", soundID, err)
	}
	return nil
}

// DeleteFusion removes the fingerprint of a deleted fused track so the
// duplicate scan never has to skip past its orphan.
func (r *gormFingerprintRepository) DeleteFusion(ctx context.Context, soundID string) error {
	if err := r.db.WithContext(ctx).
		Where("sound_id = ? AND source_kind = ?", soundID, model.SourceFusion).
		Delete(&model.FingerprintRecord{}).Error; err != nil {
		return fmt.Errorf("failed to delete fusion fingerprint for %s: %w", soundID, err)
	}
	return nil
}
