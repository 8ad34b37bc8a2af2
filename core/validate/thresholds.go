package validate

import (
	"context"

	"echoheritage/logger"
	"echoheritage/model"
)

// ControlsSource reads the singleton system_controls row.
type ControlsSource interface {
	FirstControls(ctx context.Context) (*model.SystemControls, error)
}

// DBThresholdSource loads thresholds from the controls row, degrading to
// defaults on any failure. Current never returns an error: a broken or
// missing configuration must not block uploads.
type DBThresholdSource struct {
	Controls ControlsSource
}

// Current returns the thresholds in effect right now. Read fresh on every
// call, never cached across requests.
func (s *DBThresholdSource) Current(ctx context.Context) Thresholds {
	defaults := DefaultThresholds()
	if s == nil || s.Controls == nil {
		return defaults
	}

	row, err := s.Controls.FirstControls(ctx)
	if err != nil {
		logger.Warn("failed to read system controls, using default thresholds", logger.ErrorField(err))
		return defaults
	}
	if row == nil {
		return defaults
	}

	th := Thresholds{
		MinAudioLength:       row.MinAudioLength,
		MaxAudioLength:       row.MaxAudioLength,
		MaxSimilarityAllowed: row.MaxSimilarityAllowed,
		MinVolumeThreshold:   row.MinVolumeThreshold,
	}
	// Unset numeric columns read as zero; fall back per field.
	if th.MinAudioLength == 0 {
		th.MinAudioLength = defaults.MinAudioLength
	}
	if th.MaxAudioLength == 0 {
		th.MaxAudioLength = defaults.MaxAudioLength
	}
	if th.MaxSimilarityAllowed == 0 {
		th.MaxSimilarityAllowed = defaults.MaxSimilarityAllowed
	}
	if th.MinVolumeThreshold == 0 {
		th.MinVolumeThreshold = defaults.MinVolumeThreshold
	}
	return th
}
