package domain

import "time"

// Issue represents an issue from GitLab or GitHub.
// Only the fields needed to replay label history are kept.
type Issue struct {
	Number    int // GitHub issue number, GitLab iid
	Title     string
	State     string // "open"/"opened", "closed"
	Labels    []string
	CreatedAt time.Time
	WebURL    string
}
