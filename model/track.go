package model

import "time"

// Track represents a heritage audio track in the archive.
type Track struct {
	ID            int64     `json:"id"`
	SoundID       string    `json:"sound_id"`
	Title         string    `json:"title"`
	Performer     string    `json:"performer"`
	Category      string    `json:"category"`
	Community     string    `json:"community"`
	Region        string    `json:"region"`
	Context       string    `json:"context"`
	Country       string    `json:"country"`
	Description   string    `json:"description,omitempty"`
	Contributor   string    `json:"contributor,omitempty"`
	SoundTrackURL string    `json:"sound_track_url"`
	AlbumFileURL  string    `json:"album_file_url"`
	IsApproved    bool      `json:"isapproved"`
	FusionCount   int       `json:"fusion_count"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TrackSummary is the displayable subset of a track attached to a
// duplicate-detection rejection so the client can show "this already exists".
type TrackSummary struct {
	SoundID       string `json:"sound_id"`
	Title         string `json:"title"`
	Performer     string `json:"performer"`
	AlbumFileURL  string `json:"album_file_url"`
	SoundTrackURL string `json:"sound_track_url"`
}
