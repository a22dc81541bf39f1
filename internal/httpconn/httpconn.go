// Package httpconn downloads file ranges from a web seed over a single
// persistent HTTP/1.1 connection.
package httpconn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/andres-erbsen/clock"
	"github.com/juju/ratelimit"

	"github.com/cenkalti/webseed/internal/logger"
	"github.com/cenkalti/webseed/internal/origin"
)

// readBufferSize is the unit of body reads and of emitted chunks.
const readBufferSize = 16 * 1024

// maxRedirectBodySize limits how much of a redirect response body is drained
// before reusing the connection.
const maxRedirectBodySize = 64 * 1024

// Config for a Conn.
type Config struct {
	ConnectTimeout    time.Duration
	InactivityTimeout time.Duration
	UserAgent         string
	Proxy             ProxyConfig
	// Bucket limits the download rate when set. Shared by all connections.
	Bucket *ratelimit.Bucket
	// Clock drives the inactivity watchdog. Tests inject a mock.
	Clock clock.Clock
}

// Request is a byte range of one file to be fetched.
// The range must not cross file boundaries.
type Request struct {
	URL       *url.URL
	FileIndex int
	Offset    int64 // offset within the file
	Length    int64
}

// Chunk is a blob of received payload bytes tagged with its position in file
// space. The connection knows nothing about pieces.
type Chunk struct {
	FileIndex  int
	FileOffset int64
	Data       []byte
}

// Conn is one logical keep-alive connection to a single origin, possibly via
// a proxy. Requests are issued one at a time.
type Conn struct {
	origin origin.Key
	client *http.Client
	tr     *http.Transport
	cfg    Config
	log    logger.Logger
}

// New returns a Conn for the origin of u. The underlying TCP connection is
// established lazily on the first request.
func New(u *url.URL, cfg Config, l logger.Logger) (*Conn, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	tr := &http.Transport{
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		DisableCompression:  true,
		IdleConnTimeout:     2 * time.Minute,
	}
	if err := configureTransport(tr, cfg); err != nil {
		return nil, err
	}
	return &Conn{
		origin: origin.FromURL(u),
		tr:     tr,
		client: &http.Client{
			Transport: tr,
			// Redirects are a control-plane event owned by the entry.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg: cfg,
		log: l,
	}, nil
}

// Origin returns the origin key this connection belongs to.
func (c *Conn) Origin() origin.Key { return c.origin }

// CloseIdle drops the idle keep-alive connection, if any.
func (c *Conn) CloseIdle() { c.tr.CloseIdleConnections() }

// Close releases the connection. In-flight requests must be cancelled by
// their context before calling Close.
func (c *Conn) Close() { c.tr.CloseIdleConnections() }

// watchdog cancels the request context when no bytes have been received for
// the configured duration. It covers connecting and the wait for response
// headers too, so a server that accepts the connection and stalls trips it.
type watchdog struct {
	clk      clock.Clock
	timeout  time.Duration
	cancel   context.CancelFunc
	lastRead atomic.Int64 // unix nanos
	timedOut atomic.Bool
	stopped  chan struct{}
}

func newWatchdog(ctx context.Context, cancel context.CancelFunc, clk clock.Clock, timeout time.Duration) *watchdog {
	w := &watchdog{
		clk:     clk,
		timeout: timeout,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
	w.lastRead.Store(clk.Now().UnixNano())
	if timeout > 0 {
		go w.run(ctx)
	}
	return w
}

func (w *watchdog) run(ctx context.Context) {
	for {
		idle := w.clk.Now().Sub(time.Unix(0, w.lastRead.Load()))
		if idle >= w.timeout {
			w.timedOut.Store(true)
			w.cancel()
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-w.stopped:
			return
		case <-w.clk.After(w.timeout - idle):
		}
	}
}

func (w *watchdog) touch() {
	w.lastRead.Store(w.clk.Now().UnixNano())
}

func (w *watchdog) stop() {
	close(w.stopped)
}

// Do issues a range GET for req and streams the payload to emit in file
// order. The byte slice passed to emit is only valid during the call.
//
// A 3xx response returns *RedirectError. Other failures return *Error.
func (c *Conn) Do(ctx context.Context, req Request, emit func(Chunk) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL.String(), nil)
	if err != nil {
		return &Error{Kind: KindMalformed, Err: err}
	}
	hreq.Header.Set("User-Agent", c.cfg.UserAgent)
	hreq.Header.Set("Accept-Encoding", "identity")
	hreq.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", req.Offset, req.Offset+req.Length-1))

	wd := newWatchdog(ctx, cancel, c.cfg.Clock, c.cfg.InactivityTimeout)
	defer wd.stop()

	resp, err := c.client.Do(hreq)
	if err != nil {
		return classify(err, wd.timedOut.Load())
	}
	defer resp.Body.Close()
	wd.touch()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return c.handleRedirect(req, resp)
	case resp.StatusCode == http.StatusOK:
		// Full-file response starting at offset 0. Discard the prefix before
		// the requested offset and stop after the requested length.
		return c.readBody(req, resp.Body, req.Offset, wd, emit)
	case resp.StatusCode == http.StatusPartialContent:
		start, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil {
			return &Error{Kind: KindMalformed, Err: err}
		}
		if start > req.Offset {
			return &Error{Kind: KindRangeMismatch, Status: resp.StatusCode}
		}
		// Tolerate servers that return a superset starting earlier than
		// requested by discarding the excess prefix.
		return c.readBody(req, resp.Body, req.Offset-start, wd, emit)
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusGone:
		return &Error{Kind: KindFileUnavailable, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return &Error{Kind: KindRangeMismatch, Status: resp.StatusCode}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode >= 500:
		return &Error{Kind: KindServerError, Status: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &Error{Kind: KindClientError, Status: resp.StatusCode}
	default:
		return &Error{Kind: KindMalformed, Status: resp.StatusCode}
	}
}

func (c *Conn) handleRedirect(req Request, resp *http.Response) error {
	// Drain the body so the keep-alive connection stays usable.
	_, _ = io.CopyN(io.Discard, resp.Body, maxRedirectBodySize)
	loc := resp.Header.Get("Location")
	if loc == "" {
		return &Error{Kind: KindMalformed, Status: resp.StatusCode, Err: errors.New("redirect without location")}
	}
	u, err := url.Parse(loc)
	if err != nil {
		return &Error{Kind: KindMalformed, Status: resp.StatusCode, Err: err}
	}
	u = req.URL.ResolveReference(u)
	if u.Scheme != "http" && u.Scheme != "https" {
		return &Error{Kind: KindMalformed, Status: resp.StatusCode, Err: fmt.Errorf("redirect to unsupported scheme %q", u.Scheme)}
	}
	return &RedirectError{FileIndex: req.FileIndex, Location: u}
}

// readBody streams req.Length bytes to emit after discarding the first
// discard bytes. The inactivity watchdog is touched on every read.
func (c *Conn) readBody(req Request, body io.Reader, discard int64, wd *watchdog, emit func(Chunk) error) error {
	buf := make([]byte, readBufferSize)
	for discard > 0 {
		n := int64(len(buf))
		if n > discard {
			n = discard
		}
		nn, err := body.Read(buf[:n])
		wd.touch()
		discard -= int64(nn)
		if err != nil {
			return c.readError(err, wd)
		}
	}
	var pos int64
	for pos < req.Length {
		n := int64(len(buf))
		if remaining := req.Length - pos; n > remaining {
			n = remaining
		}
		if c.cfg.Bucket != nil {
			c.cfg.Bucket.Wait(n)
		}
		nn, err := body.Read(buf[:n])
		wd.touch()
		if nn > 0 {
			if err2 := emit(Chunk{
				FileIndex:  req.FileIndex,
				FileOffset: req.Offset + pos,
				Data:       buf[:nn],
			}); err2 != nil {
				return err2
			}
			pos += int64(nn)
		}
		if err != nil {
			if pos == req.Length && err == io.EOF {
				break
			}
			return c.readError(err, wd)
		}
	}
	// Excess suffix beyond the requested range is left unread; net/http
	// drains or discards it when the body is closed.
	return nil
}

func (c *Conn) readError(err error, wd *watchdog) error {
	if wd.timedOut.Load() {
		return &Error{Kind: KindInactivityTimeout, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return &Error{Kind: KindMalformed, Err: errors.New("response body shorter than requested range")}
	}
	return classify(err, false)
}

// parseContentRange extracts the first-byte position from a Content-Range
// header of the form "bytes A-B/total".
func parseContentRange(value string) (start int64, err error) {
	if value == "" {
		return 0, errors.New("missing content-range header")
	}
	if !strings.HasPrefix(value, "bytes ") {
		return 0, fmt.Errorf("invalid content-range %q", value)
	}
	spec := strings.TrimPrefix(value, "bytes ")
	dash := strings.IndexByte(spec, '-')
	if dash == -1 {
		return 0, fmt.Errorf("invalid content-range %q", value)
	}
	_, err = fmt.Sscanf(spec[:dash], "%d", &start)
	if err != nil {
		return 0, fmt.Errorf("invalid content-range %q", value)
	}
	return start, nil
}
