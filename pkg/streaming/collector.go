package streaming

import (
	"strings"
	"sync"

	"github.com/papercomputeco/trickle/pkg/sse"
)

// Collector is a stream.Subscriber that accumulates every fragment it
// receives. Fragments are joined exactly as received, without separators.
type Collector struct {
	mu       sync.Mutex
	text     strings.Builder
	tokens   []string
	err      error
	complete bool

	onToken func(string)
}

// NewCollector returns an empty Collector. When onToken is set it is called
// with every fragment as it arrives, from the session's read loop.
func NewCollector(onToken func(string)) *Collector {
	return &Collector{onToken: onToken}
}

func (c *Collector) OnEvent(ev sse.Event) {
	c.mu.Lock()
	c.text.WriteString(ev.Data)
	c.tokens = append(c.tokens, ev.Data)
	c.mu.Unlock()

	if c.onToken != nil {
		c.onToken(ev.Data)
	}
}

func (c *Collector) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *Collector) OnComplete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = true
}

// Text returns every fragment concatenated.
func (c *Collector) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

// Normalized returns Text trimmed, with every whitespace run collapsed to a
// single space.
func (c *Collector) Normalized() string {
	return strings.Join(strings.Fields(c.Text()), " ")
}

// Tokens returns the fragments in arrival order.
func (c *Collector) Tokens() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tokens...)
}

// Err returns the transport failure, if any.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Complete reports whether the stream ended normally.
func (c *Collector) Complete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.complete
}
