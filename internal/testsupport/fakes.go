package testsupport

import (
	"context"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"gifwright/internal/media"
	"gifwright/internal/textutil"
)

// FakeProber returns canned metadata. Err, when set, is returned for every
// path; Errs overrides it per path.
type FakeProber struct {
	Info media.Info
	Err  error
	Errs map[string]error

	mu    sync.Mutex
	calls map[string]int
}

// Probe implements media.Prober.
func (p *FakeProber) Probe(ctx context.Context, path string) (media.Info, error) {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[path]++
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return media.Info{}, err
	}
	if err, ok := p.Errs[path]; ok {
		return media.Info{}, err
	}
	if p.Err != nil {
		return media.Info{}, p.Err
	}
	return p.Info, nil
}

// Calls reports how many times path was probed.
func (p *FakeProber) Calls(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

// TotalCalls reports the number of probes across all paths.
func (p *FakeProber) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, n := range p.calls {
		total += n
	}
	return total
}

// FakeTranscoder renders a synthetic GIF for every job. Inputs with the same
// normalized stem render identical bytes unless Spec says otherwise.
type FakeTranscoder struct {
	// Fail decides whether attempt n (1-based) for job fails.
	Fail func(job media.Job, attempt int) error
	// Spec overrides the rendered GIF per input.
	Spec func(job media.Job) GIFSpec
	// Hook runs before each job; tests use it to cancel mid-batch.
	Hook func(job media.Job)

	mu   sync.Mutex
	jobs []media.Job
	seen map[string]int
}

// Transcode implements media.Transcoder.
func (f *FakeTranscoder) Transcode(ctx context.Context, job media.Job) (media.Output, error) {
	f.mu.Lock()
	if f.seen == nil {
		f.seen = make(map[string]int)
	}
	f.seen[job.Input]++
	attempt := f.seen[job.Input]
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()

	if f.Hook != nil {
		f.Hook(job)
	}
	if err := ctx.Err(); err != nil {
		return media.Output{}, err
	}
	if f.Fail != nil {
		if err := f.Fail(job, attempt); err != nil {
			return media.Output{}, err
		}
	}
	spec := GIFSpec{Frames: 3, Width: 32, Height: 24, Seed: seedFor(job.Input)}
	if f.Spec != nil {
		spec = f.Spec(job)
	}
	start := time.Now()
	if err := RenderGIF(job.Output, spec); err != nil {
		return media.Output{}, err
	}
	info, err := os.Stat(job.Output)
	if err != nil {
		return media.Output{}, err
	}
	return media.Output{Path: job.Output, Size: info.Size(), Elapsed: time.Since(start)}, nil
}

// Jobs returns the jobs seen so far in call order.
func (f *FakeTranscoder) Jobs() []media.Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]media.Job(nil), f.jobs...)
}

func seedFor(input string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(textutil.StemKey(input)))
	return int(h.Sum32() % 97)
}
