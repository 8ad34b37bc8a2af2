// Package validate orchestrates the upload validation pipeline: duration and
// loudness thresholds, fingerprint extraction, and the duplicate scan against
// the stored corpus.
package validate

import (
	"echoheritage/model"
)

// Step names the pipeline stage a rejection came from.
type Step string

const (
	StepDuration    Step = "duration"
	StepLoudness    Step = "loudness"
	StepFingerprint Step = "fingerprint"
	StepSimilarity  Step = "similarity"
	StepUnknown     Step = "unknown"
)

// Rejection is a user-correctable validation failure. It short-circuits the
// pipeline at the stage named by Step and carries enough detail for the
// client to render stage-specific UI.
type Rejection struct {
	Step         Step
	Message      string
	SimilarTrack *model.TrackSummary // set only for similarity rejections
	Source       model.SourceKind    // heritage or fusion, similarity only
	Score        float64             // similarity percent, similarity only
}

// Error implements the error interface.
func (r *Rejection) Error() string {
	return r.Message
}

// Thresholds are the validation limits applied to every upload.
type Thresholds struct {
	MinAudioLength       float64 `json:"min_audio_length"`       // seconds
	MaxAudioLength       float64 `json:"max_audio_length"`       // seconds
	MaxSimilarityAllowed float64 `json:"max_similarity_allowed"` // percent
	MinVolumeThreshold   float64 `json:"min_volume_threshold"`   // percent
}

// DefaultThresholds are used whenever the system_controls row is missing or
// unreadable. Uploads must never block on configuration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAudioLength:       10,
		MaxAudioLength:       120,
		MaxSimilarityAllowed: 95,
		MinVolumeThreshold:   20,
	}
}
