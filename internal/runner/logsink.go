package runner

import (
	"strings"
	"sync"
	"time"
)

const (
	logBatchSize     = 100         // Max lines per batch
	logFlushInterval = time.Second // Flush at least every second
)

// batchSink buffers log lines and flushes them in batches, either
// when the batch fills up or on a timer.
type batchSink struct {
	flushFn func(content string)

	mu     sync.Mutex
	batch  []string
	closed bool

	stop chan struct{}
	done chan struct{}
}

func newBatchSink(flush func(content string)) *batchSink {
	s := &batchSink{
		flushFn: flush,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Line implements LogSink.
func (s *batchSink) Line(line string) {
	// Sanitize null bytes (Postgres rejects \x00)
	if strings.Contains(line, "\x00") {
		line = strings.ReplaceAll(line, "\x00", "")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.batch = append(s.batch, line)
	full := len(s.batch) >= logBatchSize
	s.mu.Unlock()

	if full {
		s.flush()
	}
}

// Close flushes remaining lines and stops the timer loop.
func (s *batchSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stop)
	<-s.done
	s.flush()
}

func (s *batchSink) flushLoop() {
	defer close(s.done)
	ticker := time.NewTicker(logFlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *batchSink) flush() {
	s.mu.Lock()
	if len(s.batch) == 0 {
		s.mu.Unlock()
		return
	}
	content := strings.Join(s.batch, "\n")
	s.batch = s.batch[:0]
	s.mu.Unlock()

	s.flushFn(content)
}
