package transfer

import (
	"io"
	"sync/atomic"
	"time"
)

// ProgressWriter wraps an io.Writer and tracks bytes written, optionally
// logging progress at intervals. Used by the client driver so long
// transfers stay observable.
type ProgressWriter struct {
	writer    io.Writer
	total     int64
	written   int64
	startTime time.Time
	filename  string
	done      chan struct{}
}

// NewProgressWriter wraps w for a transfer of total bytes. A total of 0
// disables percentage reporting.
func NewProgressWriter(w io.Writer, total int64, filename string) *ProgressWriter {
	return &ProgressWriter{
		writer:    w,
		total:     total,
		startTime: time.Now(),
		filename:  filename,
	}
}

// Write implements io.Writer.
func (pw *ProgressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	atomic.AddInt64(&pw.written, int64(n))
	return n, err
}

// Written returns the number of bytes written so far.
func (pw *ProgressWriter) Written() int64 {
	return atomic.LoadInt64(&pw.written)
}

// StartReporting logs progress every interval until StopReporting is
// called.
func (pw *ProgressWriter) StartReporting(interval time.Duration) {
	pw.done = make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				written := pw.Written()
				if pw.total > 0 {
					log.Infof("%s: %d/%d bytes (%.1f%%)", pw.filename, written, pw.total,
						float64(written)/float64(pw.total)*100)
				} else {
					log.Infof("%s: %d bytes", pw.filename, written)
				}
			case <-pw.done:
				return
			}
		}
	}()
}

// StopReporting stops the progress logger and logs the final rate.
func (pw *ProgressWriter) StopReporting() {
	if pw.done != nil {
		close(pw.done)
		pw.done = nil
	}
	elapsed := time.Since(pw.startTime)
	if elapsed > 0 {
		written := pw.Written()
		log.Infof("%s: transfer complete, %.2f MB at %.2f MB/s", pw.filename,
			float64(written)/1024/1024, float64(written)/elapsed.Seconds()/1024/1024)
	}
}
