package archive

import (
	"io"
	"sync"
	"time"
)

const (
	// copyBufferSize is the chunk size used to stream entries to disk.
	copyBufferSize = 64 * 1024

	// progressEvery is how many bytes of one entry pass between progress
	// reports.
	progressEvery = 10 * 1024 * 1024
)

var copyBuffers = sync.Pool{
	New: func() any {
		b := make([]byte, copyBufferSize)
		return &b
	},
}

// progressFunc receives the bytes written so far and the time since the
// entry started.
type progressFunc func(written int64, elapsed time.Duration)

// progressWriter counts the bytes of one entry and reports each time a
// multiple of every is crossed.
type progressWriter struct {
	w       io.Writer
	written int64
	every   int64
	start   time.Time
	report  progressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		before := p.written
		p.written += int64(n)
		if p.report != nil && p.written/p.every > before/p.every {
			p.report(p.written, time.Since(p.start))
		}
	}
	return n, err
}

// copyEntry streams src into dst through a pooled buffer.
func copyEntry(dst io.Writer, src io.Reader, report progressFunc) (int64, error) {
	bufp := copyBuffers.Get().(*[]byte)
	defer copyBuffers.Put(bufp)

	pw := &progressWriter{w: dst, every: progressEvery, start: time.Now(), report: report}
	return io.CopyBuffer(pw, src, *bufp)
}
