// Package progress wraps a byte sink and reports milestones into the
// tracker during long transfers, without ever failing the transfer on a
// reporting error.
package progress

import (
	"io"
	"log"
	"sync"
	"time"
)

const boundary = 1 << 20 // 1 MiB

// Reporter receives a byte-count update. Implementations must not block
// the download for long; the meter logs and swallows any error returned.
type Reporter interface {
	Report(bytesSoFar int64, at time.Time) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(bytesSoFar int64, at time.Time) error

func (f ReporterFunc) Report(bytesSoFar int64, at time.Time) error { return f(bytesSoFar, at) }

// Meter wraps an io.Writer, intercepting every write to track cumulative
// bytes and push boundary-crossing updates to a Reporter.
type Meter struct {
	mu         sync.Mutex
	dst        io.Writer
	reporter   Reporter
	totalBytes int64
	bytesSoFar int64
	lastReport int64
}

// New wraps dst; totalBytes may be 0 when the declared size is unknown.
func New(dst io.Writer, totalBytes int64, reporter Reporter) *Meter {
	return &Meter{dst: dst, totalBytes: totalBytes, reporter: reporter}
}

// Write implements io.Writer, forwarding to the wrapped sink and then
// checking whether a new 1 MiB boundary (or the declared total) was
// crossed.
func (m *Meter) Write(p []byte) (int, error) {
	n, err := m.dst.Write(p)
	if n > 0 {
		m.mu.Lock()
		m.bytesSoFar += int64(n)
		crossed := m.bytesSoFar/boundary > m.lastReport/boundary
		reachedTotal := m.totalBytes > 0 && m.bytesSoFar >= m.totalBytes
		soFar := m.bytesSoFar
		if crossed || reachedTotal {
			m.lastReport = soFar
		}
		m.mu.Unlock()
		if (crossed || reachedTotal) && m.reporter != nil {
			if rerr := m.reporter.Report(soFar, time.Now()); rerr != nil {
				log.Printf("progress: report failed (ignored): %v", rerr)
			}
		}
	}
	return n, err
}

// BytesSoFar returns the cumulative byte count observed so far.
func (m *Meter) BytesSoFar() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytesSoFar
}

// TotalBytes returns the declared total, or 0 if unknown.
func (m *Meter) TotalBytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// PercentComplete returns 0-100, or -1 when the total is unknown.
func (m *Meter) PercentComplete() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.totalBytes <= 0 {
		return -1
	}
	return float64(m.bytesSoFar) / float64(m.totalBytes) * 100
}
