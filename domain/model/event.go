package model

import "time"

const (
	EventJobState    = "job_state"
	EventRunFinished = "run_finished"
)

// PublishEvent is broadcast to realtime subscribers and message buses.
type PublishEvent struct {
	Type       string         `json:"type"`
	RunID      string         `json:"run_id"`
	UserID     string         `json:"user_id"`
	Platform   Platform       `json:"platform,omitempty"`
	State      UploadState    `json:"state,omitempty"`
	BytesSent  int64          `json:"bytes_sent,omitempty"`
	TotalBytes int64          `json:"total_bytes,omitempty"`
	Report     *PublishReport `json:"report,omitempty"`
	At         time.Time      `json:"at"`
}
