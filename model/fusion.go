package model

import "time"

// FusedTrack is a saved AI fusion result: a heritage track blended with a
// modern style by the external fusion engine.
type FusedTrack struct {
	ID            int64     `json:"id"`
	SoundID       string    `json:"sound_id"` // heritage track this fusion derives from
	HeritageSound string    `json:"heritage_sound"`
	ModernSound   string    `json:"modern_sound"`
	UserMail      string    `json:"user_mail"`
	FusedTrackURL string    `json:"fusedtrack_url"`
	Community     string    `json:"community"`
	Gate          *float64  `json:"gate,omitempty"`
	Clarity       *float64  `json:"clarity,omitempty"`
	Strength      *float64  `json:"strength,omitempty"`
	Temp          *float64  `json:"temp,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}
