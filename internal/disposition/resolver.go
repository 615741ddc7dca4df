package disposition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gifwright/internal/config"
	"gifwright/internal/duplicates"
	"gifwright/internal/fileutil"
	"gifwright/internal/logging"
)

// Options configures a Resolver.
type Options struct {
	Policy      Policy
	OutputDir   string
	RecoveryDir string
	Sources     *SourceIndex
	Logger      *slog.Logger
	// CreationTime overrides birth-time lookup; tests use it to pin clocks.
	CreationTime func(path string) (time.Time, bool)
	Now          func() time.Time
}

// PolicyFromConfig maps the disposition config section.
func PolicyFromConfig(cfg config.Disposition) Policy {
	return Policy{
		Mode:              Action(cfg.Mode),
		MtimeTolerance:    time.Duration(cfg.MtimeToleranceSeconds) * time.Second,
		CreationTolerance: time.Duration(cfg.CreationToleranceSeconds) * time.Second,
		SizeNoiseFloor:    cfg.SizeNoiseFloorBytes,
		DurationTolerance: cfg.DurationTolerance,
	}
}

// Outcome reports what Apply did.
type Outcome struct {
	Decision    Decision
	Applied     bool
	Destination string // quarantine target
	Note        string
}

// Resolver turns candidates into decisions and carries them out. A Resolver
// tracks files it removed, so it should be used for a single pass.
type Resolver struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	removed map[string]struct{}
}

// NewResolver returns a resolver for one dedupe pass.
func NewResolver(opts Options) *Resolver {
	if opts.CreationTime == nil {
		opts.CreationTime = birthTime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Policy.Mode == "" {
		opts.Policy.Mode = ActionReport
	}
	return &Resolver{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "disposition"),
		removed: make(map[string]struct{}),
	}
}

// Resolve gathers facts for both sides of cand and decides.
func (r *Resolver) Resolve(ctx context.Context, cand duplicates.Candidate) Decision {
	a := r.facts(ctx, cand.A)
	b := r.facts(ctx, cand.B)
	d := Decide(cand, a, b, r.opts.Policy)

	attrs := logging.DecisionAttrs("duplicate_disposition", string(d.Action), d.Reason)
	attrs = append(attrs,
		logging.String("tier", cand.Tier.String()),
		logging.String("rule", d.Rule),
		logging.String("keep", d.Keep),
		logging.String("remove", d.Remove),
	)
	if d.NeedsReview {
		attrs = append(attrs, logging.Error(d.Err), logging.Alert("manual_review"))
		logging.WarnWithContext(r.logger, "duplicate flagged for review", "duplicate_review",
			append(attrs,
				logging.String(logging.FieldErrorHint, "compare the artifact with its source before removing it by hand"),
				logging.String(logging.FieldImpact, "both files were kept"),
			)...)
	} else {
		r.logger.Info("duplicate resolved", logging.Args(attrs...)...)
	}
	return d
}

func (r *Resolver) facts(ctx context.Context, art duplicates.Artifact) Facts {
	f := Facts{
		Path:     art.Path,
		Size:     art.Size,
		ModTime:  art.ModTime,
		Duration: art.Duration,
		InOutput: within(r.opts.OutputDir, art.Path),
	}
	if info, err := os.Stat(art.Path); err == nil {
		f.Size, f.ModTime = info.Size(), info.ModTime()
	}
	f.Created = f.ModTime
	if created, ok := r.opts.CreationTime(art.Path); ok {
		f.Created = created
	}
	if src, ok := r.opts.Sources.Lookup(ctx, art.Path); ok {
		f.Source = &src
	}
	return f
}

// Apply performs the filesystem effect of d. Report and skip decisions touch
// nothing. A decision whose file to remove or keep is already gone in this
// pass is skipped so the last copy of a group always survives.
func (r *Resolver) Apply(ctx context.Context, d Decision) (Outcome, error) {
	out := Outcome{Decision: d}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	switch d.Action {
	case ActionReport:
		out.Note = "dry run"
		return out, nil
	case ActionSkip:
		out.Note = "flagged for review"
		return out, nil
	case ActionDelete, ActionQuarantine:
	default:
		return out, fmt.Errorf("unknown disposition action %q", d.Action)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, gone := r.removed[d.Remove]; gone {
		out.Note = "already removed"
		return out, nil
	}
	if _, gone := r.removed[d.Keep]; gone {
		out.Note = "kept file was removed earlier in this pass"
		return out, nil
	}
	if _, err := os.Stat(d.Keep); err != nil {
		out.Note = "kept file missing"
		return out, nil
	}

	switch d.Action {
	case ActionDelete:
		if err := os.Remove(d.Remove); err != nil && !errors.Is(err, os.ErrNotExist) {
			return out, fmt.Errorf("delete duplicate: %w", err)
		}
	case ActionQuarantine:
		dir := strings.TrimSpace(r.opts.RecoveryDir)
		if dir == "" {
			return out, errors.New("quarantine requires a recovery directory")
		}
		dest := fileutil.TimestampedPath(dir, d.Remove, r.opts.Now())
		if err := fileutil.MoveFile(d.Remove, dest); err != nil {
			return out, fmt.Errorf("quarantine duplicate: %w", err)
		}
		out.Destination = dest
	}
	r.removed[d.Remove] = struct{}{}
	out.Applied = true
	r.logger.Info("duplicate removed",
		logging.String("action", string(d.Action)),
		logging.String("removed", d.Remove),
		logging.String("kept", d.Keep),
		logging.String("destination", out.Destination),
		logging.String(logging.FieldEventType, "duplicate_removed"),
	)
	return out, nil
}

// ResolveAll resolves and applies every candidate in order.
func (r *Resolver) ResolveAll(ctx context.Context, candidates []duplicates.Candidate) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(candidates))
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		out, err := r.Apply(ctx, r.Resolve(ctx, cand))
		if err != nil {
			logging.ErrorWithContext(r.logger, "duplicate removal failed", "duplicate_apply_failed",
				logging.String("remove", out.Decision.Remove),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check permissions on the output and recovery directories"),
			)
			out.Note = err.Error()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func within(dir, path string) bool {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return false
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
