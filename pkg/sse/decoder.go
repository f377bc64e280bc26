package sse

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxBufferSize is the largest incomplete frame a Decoder retains
// before Feed fails with ErrBufferOverflow.
const DefaultMaxBufferSize = 1024 * 1024

// ErrBufferOverflow is returned by Feed when the unprocessed suffix of the
// stream grows past the decoder's maximum buffer size without a frame boundary.
var ErrBufferOverflow = errors.New("sse: incomplete frame exceeds maximum buffer size")

// Mode selects how a Decoder splits the stream into frames.
type Mode int

const (
	// ModeLine treats every "\n"-terminated line as a frame.
	ModeLine Mode = iota

	// ModeRecord treats every blank-line-terminated group of lines as a frame.
	ModeRecord
)

func (m Mode) String() string {
	switch m {
	case ModeLine:
		return "line"
	case ModeRecord:
		return "record"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses the String form of a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "line":
		return ModeLine, nil
	case "record":
		return ModeRecord, nil
	default:
		return 0, fmt.Errorf("unknown framing mode: %q (available: line, record)", s)
	}
}

// Frame is one complete protocol unit cut from the stream, without its
// terminator: a single line in ModeLine, a whole record in ModeRecord.
type Frame string

// DecoderOption configures a Decoder created with NewDecoder.
type DecoderOption func(*Decoder)

// WithMaxBufferSize caps the size of the retained incomplete frame.
// A value <= 0 disables the cap.
func WithMaxBufferSize(n int) DecoderOption {
	return func(d *Decoder) {
		d.maxBuffer = n
	}
}

// Decoder incrementally reframes a chunked byte stream.
//
// The buffer always holds exactly the bytes received after the last emitted
// frame boundary. Splitting only ever happens on ASCII line terminators, so a
// multi-byte UTF-8 sequence split across two chunks is reassembled before it
// reaches a Frame.
//
// A Decoder is not safe for concurrent use: it belongs to one reader.
type Decoder struct {
	mode      Mode
	maxBuffer int

	buf []byte

	// lineStart is the offset in buf of the first line of the current record
	// that has not been terminated yet. Always 0 in ModeLine.
	lineStart int

	// scanned is the offset in buf up to which "\n" has already been searched.
	scanned int
}

// NewDecoder returns a Decoder for the given framing mode.
func NewDecoder(mode Mode, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		mode:      mode,
		maxBuffer: DefaultMaxBufferSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Mode returns the framing mode of the decoder.
func (d *Decoder) Mode() Mode {
	return d.mode
}

// Buffered returns the number of bytes retained as an incomplete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Feed appends chunk to the buffer and returns every frame completed by it,
// in arrival order. A trailing partial frame stays buffered for the next Feed.
//
// The returned frames are identical no matter how the same byte sequence is
// split into chunks.
func (d *Decoder) Feed(chunk []byte) ([]Frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []Frame
	start := 0

	for {
		i := bytes.IndexByte(d.buf[d.scanned:], '\n')
		if i < 0 {
			d.scanned = len(d.buf)
			break
		}

		end := d.scanned + i
		next := end + 1

		if d.mode == ModeLine {
			frames = append(frames, Frame(trimCR(d.buf[start:end])))
			start, d.lineStart, d.scanned = next, next, next
			continue
		}

		if len(trimCR(d.buf[d.lineStart:end])) > 0 {
			// A field line: the record continues.
			d.lineStart, d.scanned = next, next
			continue
		}

		// Blank line: everything between start and this line is one record.
		// Leading or repeated blank lines produce no frame.
		if d.lineStart > start {
			frames = append(frames, Frame(trimNewline(d.buf[start:d.lineStart])))
		}
		start, d.lineStart, d.scanned = next, next, next
	}

	d.compact(start)

	if d.maxBuffer > 0 && len(d.buf) > d.maxBuffer {
		return frames, ErrBufferOverflow
	}

	return frames, nil
}

// Decode feeds chunk and parses every completed frame, returning the decoded
// events in arrival order. Frames that carry no event are skipped.
func (d *Decoder) Decode(chunk []byte) ([]Event, error) {
	frames, err := d.Feed(chunk)

	events := make([]Event, 0, len(frames))
	for _, f := range frames {
		if ev, ok := d.ParseFrame(f); ok {
			events = append(events, ev)
		}
	}

	return events, err
}

// ParseFrame extracts an Event from a complete frame.
//
// In ModeLine a frame yields an event only when it starts with the literal
// "data:" prefix. In ModeRecord every line of the record is scanned: the last
// "event:" and "id:" win, and all "data:" values are joined with "\n". A record
// without a "data:" field yields no event.
//
// Exactly one space following a field's colon is stripped when present.
// Nothing else is trimmed and no whitespace is ever added. Lines starting with
// ":" are comments, and unknown fields are ignored.
func (d *Decoder) ParseFrame(f Frame) (Event, bool) {
	if d.mode == ModeLine {
		return parseLine(string(f))
	}
	return parseRecord(string(f))
}

// Finish flushes the buffer when the stream ends. A non-blank trailing
// partial is parsed once as a final frame. The buffer is always reset.
func (d *Decoder) Finish() (Event, bool) {
	rest := d.buf
	d.Reset()

	if len(bytes.TrimSpace(rest)) == 0 {
		return Event{}, false
	}

	return d.ParseFrame(Frame(trimNewline(rest)))
}

// Reset discards any buffered data.
func (d *Decoder) Reset() {
	d.buf = nil
	d.lineStart = 0
	d.scanned = 0
}

// compact drops the first n consumed bytes of the buffer.
func (d *Decoder) compact(n int) {
	if n == 0 {
		return
	}

	if n == len(d.buf) {
		d.buf = d.buf[:0]
	} else {
		d.buf = append(d.buf[:0], d.buf[n:]...)
	}
	d.lineStart -= n
	d.scanned -= n
}

func parseLine(line string) (Event, bool) {
	value, ok := strings.CutPrefix(strings.TrimSuffix(line, "\r"), "data:")
	if !ok {
		return Event{}, false
	}

	return Event{
		Name: DefaultEventName,
		Data: strings.TrimPrefix(value, " "),
	}, true
}

func parseRecord(record string) (Event, bool) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)

	for line := range strings.SplitSeq(record, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value := splitField(line)
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "event":
			ev.Name = value
		case "id":
			ev.ID = value
		default:
			// "retry" and unknown fields are ignored.
		}
	}

	if !hasData {
		return Event{}, false
	}

	if ev.Name == "" {
		ev.Name = DefaultEventName
	}
	ev.Data = data.String()

	return ev, true
}

// splitField splits "field:value" and strips a single leading space from the
// value. A line with no colon is a field name with an empty value.
func splitField(line string) (string, string) {
	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}

func trimCR(b []byte) []byte {
	return bytes.TrimSuffix(b, []byte("\r"))
}

func trimNewline(b []byte) []byte {
	return trimCR(bytes.TrimSuffix(b, []byte("\n")))
}
