package models

import "time"

// Stats represents project statistics
type Stats struct {
	TotalFiles   int64
	TotalSize    int64
	LastSyncedAt time.Time
}
