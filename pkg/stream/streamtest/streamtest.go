// Package streamtest provides fake stream sources for tests.
package streamtest

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/trickle/pkg/stream"
)

// chunkBody returns one chunk per Read, then err (or io.EOF).
type chunkBody struct {
	chunks []string
	err    error
	closed atomic.Bool
}

func (b *chunkBody) Read(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}

	n := copy(p, b.chunks[0])
	b.chunks[0] = b.chunks[0][n:]
	if b.chunks[0] == "" {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkBody) Close() error {
	b.closed.Store(true)
	return nil
}

// Chunks returns a Source whose body delivers each chunk from a separate Read
// and then ends cleanly.
func Chunks(chunks ...string) stream.Source {
	return FailAfter(nil, chunks...)
}

// FailAfter returns a Source whose body delivers the chunks and then fails with
// err. A nil err ends the body with io.EOF.
func FailAfter(err error, chunks ...string) stream.Source {
	return stream.SourceFunc(func(context.Context) (io.ReadCloser, error) {
		return &chunkBody{chunks: append([]string(nil), chunks...), err: err}, nil
	})
}

// Failing returns a Source that cannot be opened.
func Failing(err error) stream.Source {
	return stream.SourceFunc(func(context.Context) (io.ReadCloser, error) {
		return nil, err
	})
}

// Live is a Source whose body is written by the test while the session runs.
// Each Send is consumed by a single Read.
type Live struct {
	r *io.PipeReader
	w *io.PipeWriter

	opened    chan struct{}
	openOnce  sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	opens     atomic.Int32
}

// NewLive returns a Live source that has not been opened yet.
func NewLive() *Live {
	r, w := io.Pipe()
	return &Live{
		r:      r,
		w:      w,
		opened: make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// Open implements stream.Source.
func (l *Live) Open(context.Context) (io.ReadCloser, error) {
	l.opens.Add(1)
	l.openOnce.Do(func() { close(l.opened) })
	return &liveBody{l}, nil
}

// Send blocks until the session reads chunk. It fails once the session
// closed the body.
func (l *Live) Send(chunk string) error {
	_, err := io.WriteString(l.w, chunk)
	return err
}

// End closes the stream cleanly.
func (l *Live) End() {
	_ = l.w.Close()
}

// Fail closes the stream with err.
func (l *Live) Fail(err error) {
	_ = l.w.CloseWithError(err)
}

// Opened is closed once the session opened the source.
func (l *Live) Opened() <-chan struct{} {
	return l.opened
}

// Closed is closed once the session closed the body.
func (l *Live) Closed() <-chan struct{} {
	return l.closed
}

// Opens returns how many times the source was opened.
func (l *Live) Opens() int {
	return int(l.opens.Load())
}

type liveBody struct {
	l *Live
}

func (b *liveBody) Read(p []byte) (int, error) {
	return b.l.r.Read(p)
}

func (b *liveBody) Close() error {
	b.l.closeOnce.Do(func() { close(b.l.closed) })
	return b.l.r.Close()
}
