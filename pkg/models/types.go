package models

import "time"

// Entry is one synchronized remote file as recorded in the local database.
type Entry struct {
	ID         int64 // local surrogate key (_id)
	FileID     string
	Name       string
	SyncedAt   time.Time
	ModifiedAt time.Time
	Size       int64
}

// RemoteData is the subset of an entry needed to decide whether a remote file changed.
type RemoteData struct {
	Name       string
	ModifiedAt time.Time
}

// RemoteFile is a file as reported by the remote listing.
type RemoteFile struct {
	ID         string
	Name       string
	ModifiedAt time.Time
}

type Project struct {
	Name            string
	LocalDir        string
	CredentialsPath string
	TokenPath       string
	Destination     struct {
		Endpoint  string
		Bucket    string
		Folder    string
		AccessKey string
		SecretKey string
		Secure    bool
	}
}

// HasBucket reports whether content should be mirrored into MinIO instead of LocalDir.
func (p *Project) HasBucket() bool {
	return p.Destination.Endpoint != "" && p.Destination.Bucket != ""
}

// QueryOptions narrows a listing. Results are always newest-inserted first.
type QueryOptions struct {
	Limit        int
	NameContains string
}
