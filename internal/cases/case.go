package cases

import (
	"errors"
	"time"
)

// ErrCaseNotFound is returned by the store when a case id does not resolve.
var ErrCaseNotFound = errors.New("cases: case not found")

// ErrResourceNotFound is returned by the store when a resource id does not resolve.
var ErrResourceNotFound = errors.New("cases: resource not found")

// Resource types inferred from media URLs.
const (
	ResourceTypeImage   = "image"
	ResourceTypePDF     = "pdf"
	ResourceTypeAudio   = "audio"
	ResourceTypeVideo   = "video"
	ResourceTypeUnknown = "unknown"
)

// Case is an imported simulation case row.
type Case struct {
	CaseID          string
	SparkTitle      string
	RevealTitle     string
	SeriesName      string
	DifficultyLevel string
	// RawRow holds the full source row keyed by the sheet's column headers.
	RawRow    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource is a piece of case media that can be unlocked during a session.
type Resource struct {
	CaseID       string
	ResourceID   string
	ResourceType string
	OriginalURL  string
	S3Key        string
	IsSynced     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
