package models

import "time"

// WatchProgress is the per-(user, video) playback record. Writes are periodic
// client-reported progress, so last-write-wins is acceptable.
type WatchProgress struct {
	UserID          string    `json:"userId"`
	VideoID         string    `json:"videoId"`
	LastOpened      time.Time `json:"lastOpened"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	DurationSeconds float64   `json:"durationSeconds"`
	PositionSeconds float64   `json:"positionSeconds"`
	Active          bool      `json:"active"`
}
