package ops

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// recordingSink records everything an operation emits.
type recordingSink struct {
	mu       sync.Mutex
	statuses []string
	progress []float64
	onStatus func(string)
	onProg   func(float64)
}

func (s *recordingSink) Status(message string) {
	s.mu.Lock()
	s.statuses = append(s.statuses, message)
	cb := s.onStatus
	s.mu.Unlock()
	if cb != nil {
		cb(message)
	}
}

func (s *recordingSink) Progress(fraction float64) {
	s.mu.Lock()
	s.progress = append(s.progress, fraction)
	cb := s.onProg
	s.mu.Unlock()
	if cb != nil {
		cb(fraction)
	}
}

func (s *recordingSink) Statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses...)
}

func (s *recordingSink) Progresses() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.progress...)
}

// Empty reports whether nothing at all was emitted.
func (s *recordingSink) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statuses) == 0 && len(s.progress) == 0
}

// testEnv returns an Env with fast retries and the fake tools from testdata.
func testEnv(t *testing.T) *Env {
	t.Helper()
	abs := func(name string) string {
		p, err := filepath.Abs(filepath.Join("testdata", name))
		if err != nil {
			t.Fatalf("resolving %s: %v", name, err)
		}
		return p
	}

	env := NewEnv(nil)
	env.Retry = RetryConfig{
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		MaxElapsedTime:  2 * time.Second,
		Multiplier:      2.0,
		MaxRetries:      2,
	}
	env.Tools = Tools{
		FFmpeg:  abs("fake-ffmpeg.sh"),
		FFprobe: abs("fake-ffprobe.sh"),
		Wget:    abs("fake-wget.sh"),
	}
	return env
}
