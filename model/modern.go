package model

import "time"

// ModernTrack is a modern style reference used as fusion input. Modern tracks
// skip the upload validation pipeline: they are style material, not heritage
// audio.
type ModernTrack struct {
	ID             int64     `json:"id"`
	Category       string    `json:"category"`
	RhythmStyle    string    `json:"rhythm_style"`
	BPM            int       `json:"bpm"`
	Mood           string    `json:"mood"`
	ModernAudioURL string    `json:"modernaudio_url"`
	IsApproved     bool      `json:"isapproved"`
	CreatedAt      time.Time `json:"createdAt"`
}
