package models

import "time"

// DownloadRecord is one user's row in the quota ledger
type DownloadRecord struct {
	UserID           int64
	DownloadCount    int
	LastDownloadDate time.Time
}
