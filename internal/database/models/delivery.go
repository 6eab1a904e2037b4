package models

import "time"

// Delivery records a completed job
type Delivery struct {
	ID            int64
	UserID        int64
	SourceKind    string
	MediaID       string
	MediaURL      string
	Title         string
	Quality       string
	Method        string
	FileSizeBytes int64
	DeliveredAt   time.Time
}
