package gormdb

import (
	"time"

	"gorm.io/datatypes"
)

// SessionRow is one recorded session.
type SessionRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Slot      int
	Solo      bool
	StartedAt time.Time `gorm:"index"`
	EndedAt   *time.Time
	Samples   int
	Meta      datatypes.JSON
}

// TableName sets the session table name.
func (SessionRow) TableName() string { return "trace_sessions" }

// SampleRow is one recorded tick.
type SampleRow struct {
	ID           uint   `gorm:"primaryKey"`
	SessionID    string `gorm:"size:64;index:idx_sample_session_tick"`
	Tick         uint64 `gorm:"index:idx_sample_session_tick"`
	Time         time.Time
	X            float64
	Y            float64
	VX           float64
	VY           float64
	Heading      float64
	Steering     float64
	Acceleration float64
	Lap          int
	OffTrack     bool
	Peer         string `gorm:"size:16"`
	PeerTick     uint64
}

// TableName sets the sample table name.
func (SampleRow) TableName() string { return "trace_samples" }
