package model

import "time"

// SystemControls is the singleton configuration row: upload validation
// thresholds, catalogue grouping flags and download/subscription pricing.
// Mutated only by privileged administrators; read on every upload.
type SystemControls struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	// Upload validation thresholds
	MinAudioLength       float64 `gorm:"column:min_audio_length" json:"min_audio_length"`
	MaxAudioLength       float64 `gorm:"column:max_audio_length" json:"max_audio_length"`
	MaxSimilarityAllowed float64 `gorm:"column:max_similarity_allowed" json:"max_similarity_allowed"`
	MinVolumeThreshold   float64 `gorm:"column:min_volume_threshold" json:"min_volume_threshold"`

	// Catalogue grouping flags
	GroupByCategory bool `gorm:"column:group_by_category" json:"group_by_category"`
	GroupByCountry  bool `gorm:"column:group_by_country" json:"group_by_country"`

	// Pricing
	HeritageDownload float64 `gorm:"column:heritage_download" json:"heritage_download"`
	FusedDownload    float64 `gorm:"column:fused_download" json:"fused_download"`
	DailySub         float64 `gorm:"column:daily_sub" json:"daily_sub"`
	WeeklySub        float64 `gorm:"column:weekly_sub" json:"weekly_sub"`
	MonthlySub       float64 `gorm:"column:monthly_sub" json:"monthly_sub"`
	YearlySub        float64 `gorm:"column:yearly_sub" json:"yearly_sub"`

	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName sets the GORM table name.
func (SystemControls) TableName() string {
	return "system_controls"
}
