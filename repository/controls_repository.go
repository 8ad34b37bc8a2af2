package repository

import (
	"context"
	"fmt"

	"echoheritage/model"

	"gorm.io/gorm"
)

// ControlsRepository reads and patches the singleton system_controls row.
type ControlsRepository interface {
	// FirstControls returns the singleton row, or nil when none exists.
	FirstControls(ctx context.Context) (*model.SystemControls, error)
	// PatchControls applies a partial update to the singleton row, creating it
	// if absent. Omitted fields are left as-is.
	PatchControls(ctx context.Context, updates map[string]interface{}) error
}

type gormControlsRepository struct {
	db *gorm.DB
}

// NewGormControlsRepository creates a controls repository backed by GORM.
func NewGormControlsRepository(db *gorm.DB) ControlsRepository {
	return &gormControlsRepository{db: db}
}

func (r *gormControlsRepository) FirstControls(ctx context.Context) (*model.SystemControls, error) {
	var row model.SystemControls
	err := r.db.WithContext(ctx).Order("id ASC").First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load system controls: %w", err)
	}
	return &row, nil
}

func (r *gormControlsRepository) PatchControls(ctx context.Context, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	row, err := r.FirstControls(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		fresh := model.SystemControls{}
		if err := r.db.WithContext(ctx).Create(&fresh).Error; err != nil {
			return fmt.Errorf("failed to create system controls row: %w", err)
		}
		row = &fresh
	}

	if err := r.db.WithContext(ctx).
		Model(&model.SystemControls{}).
		Where("id = ?", row.ID).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("failed to update system controls: %w", err)
	}
	return nil
}
