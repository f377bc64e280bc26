package sse

import (
	"errors"
	"io"
)

const defaultReadSize = 32 * 1024

// Reader pulls chunks from a source io.Reader, decodes them with a Decoder,
// and hands out events one at a time. When a destination io.Writer is set, all
// raw bytes are written to it verbatim as they are read (tee shaped reading).
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │  chunks
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │   Decoder.Feed   │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │  frames
// ▼
// ┌──────────────────┐
// │   Reader.Next    │──▶ Event
// └──────────────────┘
type Reader struct {
	src     io.Reader
	dest    io.Writer
	decoder *Decoder
	chunk   []byte

	// pending holds events decoded from the last chunk that have not been
	// returned by Next yet.
	pending []Event
	done    bool
	err     error
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

type readerConfig struct {
	readSize    int
	decoderOpts []DecoderOption
}

// WithReadSize sets the size of each Read issued against the source.
func WithReadSize(n int) ReaderOption {
	return func(c *readerConfig) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// WithDecoderOptions passes options through to the underlying Decoder.
func WithDecoderOptions(opts ...DecoderOption) ReaderOption {
	return func(c *readerConfig) {
		c.decoderOpts = append(c.decoderOpts, opts...)
	}
}

// NewReader returns a Reader that decodes events from src.
func NewReader(src io.Reader, mode Mode, opts ...ReaderOption) *Reader {
	return NewTeeReader(src, nil, mode, opts...)
}

// NewTeeReader returns a Reader that decodes events from src and writes all
// raw bytes through to dest. A nil dest disables the tee.
func NewTeeReader(src io.Reader, dest io.Writer, mode Mode, opts ...ReaderOption) *Reader {
	cfg := &readerConfig{readSize: defaultReadSize}
	for _, opt := range opts {
		opt(cfg)
	}

	return &Reader{
		src:     src,
		dest:    dest,
		decoder: NewDecoder(mode, cfg.decoderOpts...),
		chunk:   make([]byte, cfg.readSize),
	}
}

// Next returns the next decoded event. It blocks until a complete event is
// available. When the source is exhausted, any trailing partial frame is
// flushed as a final event, after which Next returns nil, nil.
//
// A read error other than io.EOF is returned once every event decoded before
// it has been handed out. The buffered partial frame is discarded.
func (r *Reader) Next() (*Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return &ev, nil
		}

		if r.done {
			err := r.err
			r.err = nil
			return nil, err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			if werr := r.tee(r.chunk[:n]); werr != nil {
				r.fail(werr)
				continue
			}

			events, ferr := r.decoder.Decode(r.chunk[:n])
			r.pending = append(r.pending, events...)
			if ferr != nil {
				r.fail(ferr)
				continue
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			r.done = true
			if ev, ok := r.decoder.Finish(); ok {
				r.pending = append(r.pending, ev)
			}
		default:
			r.fail(err)
		}
	}
}

// Discard drops any buffered data and pending events. Subsequent calls to
// Next return nil, nil.
func (r *Reader) Discard() {
	r.decoder.Reset()
	r.pending = nil
	r.done = true
	r.err = nil
}

func (r *Reader) fail(err error) {
	r.decoder.Reset()
	r.done = true
	r.err = err
}

func (r *Reader) tee(b []byte) error {
	if r.dest == nil {
		return nil
	}
	_, err := r.dest.Write(b)
	return err
}
