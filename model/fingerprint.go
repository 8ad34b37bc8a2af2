package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// SourceKind tags which corpus a fingerprint belongs to.
type SourceKind string

const (
	SourceHeritage SourceKind = "heritage"
	SourceFusion   SourceKind = "fusion"
)

// FingerprintData is the ordered sequence of 32-bit integers produced by the
// fingerprint tool for one audio asset. Stored as a JSON column.
type FingerprintData []uint32

// Value implements driver.Valuer.
func (d FingerprintData) Value() (driver.Value, error) {
	if d == nil {
		d = FingerprintData{}
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner.
func (d *FingerprintData) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	case nil:
		*d = nil
		return nil
	default:
		return fmt.Errorf("unsupported fingerprint column type %T", value)
	}
}

// FingerprintRecord is one stored acoustic fingerprint, owned by exactly one
// track via SoundID. Heritage records are upserted when a track's audio is
// replaced; fusion records accumulate one per saved fusion result.
type FingerprintRecord struct {
	ID              int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	SoundID         string          `gorm:"column:sound_id;size:64;index" json:"sound_id"`
	SourceKind      SourceKind      `gorm:"column:source_kind;size:16;index" json:"source_kind"`
	FingerprintData FingerprintData `gorm:"column:fingerprint_data;type:json" json:"fingerprint_data"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// TableName sets the GORM table name.
func (FingerprintRecord) TableName() string {
	return "audio_fingerprints"
}
