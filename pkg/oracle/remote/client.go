package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voiceshield/pkg/perturb"
)

// ErrClosed is returned by calls on a closed Client.
var ErrClosed = errors.New("remote: client closed")

// Client is a [perturb.Oracle] backed by a remote [Handler].
//
// Requests on one Client are serialized, and the server keeps only a
// window of embed_grad results per connection. Concurrent runs should
// each use their own Client; see [Client.Fork].
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	url     string
	opts    []ClientOption
	nextID  uint64
	closed  bool
	rate    int
	timeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientSampleRate declares the sample rate of the waveforms sent to
// the server. Zero (the default) omits it.
func WithClientSampleRate(rate int) ClientOption {
	return func(c *Client) {
		c.rate = rate
	}
}

// WithTimeout bounds each request when ctx carries no deadline
// (default 60s).
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Dial connects to a Handler at url (ws:// or wss://).
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", url, err)
	}
	c := &Client{conn: conn, url: url, opts: opts, timeout: 60 * time.Second}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Fork dials a new connection to the same server with the same options.
// The caller closes the returned Client.
func (c *Client) Fork(ctx context.Context) (perturb.Oracle, error) {
	return Dial(ctx, c.url, c.opts...)
}

// Embed implements [perturb.Oracle].
func (c *Client) Embed(ctx context.Context, samples []float64) ([]float64, error) {
	resp, err := c.roundTrip(ctx, &request{Op: opEmbed, SampleRate: c.rate, Samples: samples})
	if err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// EmbedGrad implements [perturb.Oracle].
func (c *Client) EmbedGrad(ctx context.Context, samples []float64) ([]float64, perturb.Backward, error) {
	req := &request{Op: opEmbedGrad, SampleRate: c.rate, Samples: samples}
	resp, err := c.roundTrip(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	ref := resp.ID
	var consumed atomic.Bool
	backward := func(upstream []float64) ([]float64, error) {
		if consumed.Swap(true) {
			return nil, fmt.Errorf("remote: backward for request %d already consumed", ref)
		}
		resp, err := c.roundTrip(ctx, &request{Op: opBackward, Ref: ref, Upstream: upstream})
		if err != nil {
			return nil, err
		}
		return resp.Gradient, nil
	}
	return resp.Embedding, backward, nil
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

func (c *Client) roundTrip(ctx context.Context, req *request) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.nextID++
	req.ID = c.nextID

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	_ = c.conn.SetWriteDeadline(deadline)
	_ = c.conn.SetReadDeadline(deadline)

	data, err := msgpack.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("remote: encode %s: %w", req.Op, err)
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return nil, fmt.Errorf("remote: send %s: %w", req.Op, err)
	}

	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("remote: receive %s: %w", req.Op, err)
	}
	var resp response
	if err := msgpack.Unmarshal(msg, &resp); err != nil {
		return nil, fmt.Errorf("remote: decode %s: %w", req.Op, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("remote: response id %d does not match request %d", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("remote: %s: %s", req.Op, resp.Error)
	}
	return &resp, nil
}
