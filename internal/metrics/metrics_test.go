package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"

	"gifwright/internal/filecache"
)

func TestRecorderCounters(t *testing.T) {
	r := New()
	r.RecordFile("ok", 2*time.Second)
	r.RecordFile("ok", time.Second)
	r.RecordFile("failed", time.Second)
	r.RecordRetry()
	r.RecordPrediction("exact")
	r.RecordCache("analysis", filecache.Stats{Hits: 3, Misses: 2, StaleMisses: 1, Writes: 3, WriteFailures: 1})
	r.RecordDuplicate("exact")
	r.RecordDecision("quarantine", true)
	r.RecordBreakerState("probe", gobreaker.StateOpen)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"files ok", testutil.ToFloat64(r.files.WithLabelValues("ok")), 2},
		{"files failed", testutil.ToFloat64(r.files.WithLabelValues("failed")), 1},
		{"retries", testutil.ToFloat64(r.retries), 1},
		{"predictions", testutil.ToFloat64(r.predictions.WithLabelValues("exact")), 1},
		{"cache hits", testutil.ToFloat64(r.cacheLookups.WithLabelValues("analysis", "hit")), 3},
		{"cache stale", testutil.ToFloat64(r.cacheLookups.WithLabelValues("analysis", "stale")), 1},
		{"cache write failures", testutil.ToFloat64(r.cacheWrites.WithLabelValues("analysis", "failed")), 1},
		{"duplicates", testutil.ToFloat64(r.duplicates.WithLabelValues("exact")), 1},
		{"decisions", testutil.ToFloat64(r.decisions.WithLabelValues("quarantine", "true")), 1},
		{"breaker", testutil.ToFloat64(r.breakerState.WithLabelValues("probe")), 2},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Fatalf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordFile("ok", time.Second)
	r.RecordRetry()
	r.RecordCache("analysis", filecache.Stats{Hits: 1})
	r.RecordBatch(2, time.Second, time.Now())
	if err := r.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")); err != nil {
		t.Fatalf("WriteTextfile on nil recorder: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordBatch(3, 1500*time.Millisecond, time.Unix(1_700_000_000, 0))
	path := filepath.Join(t.TempDir(), "metrics", "gifwright.prom")
	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{"gifwright_batch_workers 3", "gifwright_batch_duration_seconds 1.5", "gifwright_last_batch_timestamp_seconds 1.7e+09"} {
		if !strings.Contains(text, want) {
			t.Fatalf("textfile missing %q:\n%s", want, text)
		}
	}
}
