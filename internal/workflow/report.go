package workflow

import (
	"time"

	"gifwright/internal/disposition"
	"gifwright/internal/duplicates"
	"gifwright/internal/filecache"
	"gifwright/internal/learning"
	"gifwright/internal/media"
)

// FileStatus is the terminal state of one input.
type FileStatus string

const (
	StatusOK        FileStatus = "ok"
	StatusRetried   FileStatus = "retried"
	StatusFailed    FileStatus = "failed"
	StatusCancelled FileStatus = "cancelled"
)

// Settings sources.
const (
	SourceCache   = "cache"
	SourceExact   = string(learning.MatchExact)
	SourceSimilar = string(learning.MatchSimilar)
	SourceStatic  = "static"
)

// FileResult describes what happened to one input.
type FileResult struct {
	Input    string
	Output   string
	Status   FileStatus
	CacheHit bool
	Source   string
	Pattern  learning.Pattern
	Settings media.Settings
	Attempts int
	Size     int64
	Elapsed  time.Duration
	Err      error
}

// DedupeResult is the outcome of one duplicate pass.
type DedupeResult struct {
	Artifacts  int
	Candidates []duplicates.Candidate
	Groups     []duplicates.Group
	Outcomes   []disposition.Outcome
	Stats      filecache.Stats
}

// Removed counts outcomes that deleted or quarantined a file.
func (d DedupeResult) Removed() int {
	n := 0
	for _, o := range d.Outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}

// Flagged counts decisions held back for manual review.
func (d DedupeResult) Flagged() int {
	n := 0
	for _, o := range d.Outcomes {
		if o.Decision.NeedsReview {
			n++
		}
	}
	return n
}

// Report aggregates one batch.
type Report struct {
	BatchID       string
	Started       time.Time
	Finished      time.Time
	Workers       int
	Files         []FileResult
	AnalysisStats filecache.Stats
	Dedupe        DedupeResult
	Cancelled     bool
}

// Count returns the number of files with the given status.
func (r Report) Count(status FileStatus) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == status {
			n++
		}
	}
	return n
}

// Outputs lists the artifacts written by the batch.
func (r Report) Outputs() []string {
	out := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Status == StatusOK || f.Status == StatusRetried {
			out = append(out, f.Output)
		}
	}
	return out
}

// Elapsed is the batch wall time.
func (r Report) Elapsed() time.Duration {
	return r.Finished.Sub(r.Started)
}
