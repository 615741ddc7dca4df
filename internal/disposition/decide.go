package disposition

import (
	"fmt"
	"time"

	"gifwright/internal/duplicates"
	"gifwright/internal/services"
)

// Action is what happens to the losing artifact.
type Action string

const (
	ActionDelete     Action = "delete"
	ActionQuarantine Action = "quarantine"
	ActionReport     Action = "report"
	ActionSkip       Action = "skip"
)

// Facts are the observations the rule chain decides on.
type Facts struct {
	Path     string
	Size     int64
	ModTime  time.Time
	Created  time.Time // birth time, or ModTime when unavailable
	Duration time.Duration
	InOutput bool
	Source   *Source
}

// Policy holds the tolerances and the configured removal mode.
type Policy struct {
	Mode              Action
	MtimeTolerance    time.Duration
	CreationTolerance time.Duration
	SizeNoiseFloor    int64
	// DurationTolerance is the allowed relative duration gap to the source.
	DurationTolerance float64
}

// Decision is the resolver's verdict for one candidate.
type Decision struct {
	Candidate   duplicates.Candidate
	Keep        string
	Remove      string
	Action      Action
	Rule        string
	Reason      string
	NeedsReview bool
	// Err wraps services.ErrDuplicatePropertyMismatch when the guard tripped.
	Err error
}

type verdict int

const (
	undecided verdict = iota
	keepA
	keepB
)

type rule struct {
	name  string
	apply func(a, b *Facts, p Policy) (verdict, string)
}

var rules = []rule{
	{"traceable_source", func(a, b *Facts, _ Policy) (verdict, string) {
		switch {
		case a.Source != nil && b.Source == nil:
			return keepA, "matches source " + a.Source.Path
		case b.Source != nil && a.Source == nil:
			return keepB, "matches source " + b.Source.Path
		}
		return undecided, ""
	}},
	{"canonical_location", func(a, b *Facts, _ Policy) (verdict, string) {
		switch {
		case a.InOutput && !b.InOutput:
			return keepA, "in output directory"
		case b.InOutput && !a.InOutput:
			return keepB, "in output directory"
		}
		return undecided, ""
	}},
	{"earlier_creation", func(a, b *Facts, p Policy) (verdict, string) {
		gap := a.Created.Sub(b.Created)
		switch {
		case gap < -p.CreationTolerance:
			return keepA, fmt.Sprintf("created %s earlier", (-gap).Round(time.Second))
		case gap > p.CreationTolerance:
			return keepB, fmt.Sprintf("created %s earlier", gap.Round(time.Second))
		}
		return undecided, ""
	}},
	{"larger_size", func(a, b *Facts, p Policy) (verdict, string) {
		diff := a.Size - b.Size
		if diff < 0 {
			diff = -diff
		}
		if diff < p.SizeNoiseFloor || diff == 0 {
			return undecided, ""
		}
		if a.Size > b.Size {
			return keepA, fmt.Sprintf("larger by %d bytes", diff)
		}
		return keepB, fmt.Sprintf("larger by %d bytes", diff)
	}},
	{"recent_modification", func(a, b *Facts, _ Policy) (verdict, string) {
		switch {
		case a.ModTime.After(b.ModTime):
			return keepA, "modified more recently"
		case b.ModTime.After(a.ModTime):
			return keepB, "modified more recently"
		}
		return undecided, ""
	}},
	{"path_order", func(a, b *Facts, _ Policy) (verdict, string) {
		if a.Path <= b.Path {
			return keepA, "lexically first path"
		}
		return keepB, "lexically first path"
	}},
}

// Decide runs the rule chain and the plausibility guard. It has no side
// effects; a and b correspond to cand.A and cand.B.
func Decide(cand duplicates.Candidate, a, b Facts, p Policy) Decision {
	d := Decision{Candidate: cand, Action: p.Mode}
	if d.Action == "" {
		d.Action = ActionReport
	}
	var loser *Facts
	for _, r := range rules {
		v, reason := r.apply(&a, &b, p)
		if v == undecided {
			continue
		}
		d.Rule, d.Reason = r.name, reason
		if v == keepA {
			d.Keep, d.Remove, loser = a.Path, b.Path, &b
		} else {
			d.Keep, d.Remove, loser = b.Path, a.Path, &a
		}
		break
	}
	if violation := guard(loser, p); violation != "" {
		d.Action = ActionSkip
		d.NeedsReview = true
		d.Err = services.Wrap(services.ErrDuplicatePropertyMismatch, "disposition", "guard", violation, nil)
	}
	return d
}

// guard checks a removal candidate against its traceable source and returns
// the first violation found.
func guard(f *Facts, p Policy) string {
	if f == nil || f.Source == nil {
		return ""
	}
	src := f.Source
	if f.ModTime.Before(src.ModTime.Add(-p.MtimeTolerance)) {
		return fmt.Sprintf("%s modified %s before its source %s", f.Path, src.ModTime.Sub(f.ModTime).Round(time.Second), src.Path)
	}
	if src.Size > 0 && f.Size > src.Size {
		return fmt.Sprintf("%s (%d bytes) larger than its source (%d bytes)", f.Path, f.Size, src.Size)
	}
	if src.Duration > 0 && f.Duration > 0 {
		gap := float64(f.Duration-src.Duration) / float64(src.Duration)
		if gap < 0 {
			gap = -gap
		}
		if gap > p.DurationTolerance {
			return fmt.Sprintf("%s duration %s differs %.0f%% from source %s", f.Path, f.Duration, gap*100, src.Duration)
		}
	}
	return ""
}
