package httpconn

import (
	"bytes"
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/webseed/internal/logger"
)

var testConfig = Config{
	ConnectTimeout:    5 * time.Second,
	InactivityTimeout: 5 * time.Second,
	UserAgent:         "webseed-test/1",
}

func testData(n int) []byte {
	b := make([]byte, n)
	r := rand.New(rand.NewSource(42))
	r.Read(b)
	return b
}

func newConn(t *testing.T, rawurl string, cfg Config) (*Conn, *url.URL) {
	u, err := url.Parse(rawurl)
	require.NoError(t, err)
	c, err := New(u, cfg, logger.New("test conn"))
	require.NoError(t, err)
	return c, u
}

func collect(t *testing.T, c *Conn, req Request) ([]byte, error) {
	var buf bytes.Buffer
	var last int64 = req.Offset
	err := c.Do(context.Background(), req, func(ch Chunk) error {
		assert.Equal(t, req.FileIndex, ch.FileIndex)
		assert.Equal(t, last, ch.FileOffset)
		buf.Write(ch.Data)
		last += int64(len(ch.Data))
		return nil
	})
	return buf.Bytes(), err
}

func TestRangeRequest(t *testing.T) {
	data := testData(100 << 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=1000-51999", r.Header.Get("Range"))
		assert.Equal(t, "webseed-test/1", r.Header.Get("User-Agent"))
		http.ServeContent(w, r, "data.bin", time.Time{}, bytes.NewReader(data))
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	got, err := collect(t, c, Request{URL: u, FileIndex: 3, Offset: 1000, Length: 51000})
	require.NoError(t, err)
	assert.Equal(t, data[1000:52000], got)
}

func TestFullResponse(t *testing.T) {
	data := testData(4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Range header ignored, whole file returned.
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	got, err := collect(t, c, Request{URL: u, Offset: 1024, Length: 2048})
	require.NoError(t, err)
	assert.Equal(t, data[1024:3072], got)
}

func TestSupersetRange(t *testing.T) {
	data := testData(4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-4095/4096")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	got, err := collect(t, c, Request{URL: u, Offset: 100, Length: 200})
	require.NoError(t, err)
	assert.Equal(t, data[100:300], got)
}

func TestRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://mirror.example.com/files/data.bin", http.StatusFound)
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, FileIndex: 7, Offset: 0, Length: 16})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, 7, redirect.FileIndex)
	assert.Equal(t, "http://mirror.example.com/files/data.bin", redirect.Location.String())
}

func TestRedirectRelative(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "/other/data.bin")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/seed/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 16})
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.Equal(t, srv.URL+"/other/data.bin", redirect.Location.String())
}

func TestRedirectUnsupportedScheme(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "ftp://example.com/data.bin")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 16})
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindMalformed, herr.Kind)
}

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		kind   Kind
	}{
		{http.StatusUnauthorized, KindFileUnavailable},
		{http.StatusForbidden, KindFileUnavailable},
		{http.StatusNotFound, KindFileUnavailable},
		{http.StatusGone, KindFileUnavailable},
		{http.StatusRequestedRangeNotSatisfiable, KindRangeMismatch},
		{http.StatusRequestTimeout, KindServerError},
		{http.StatusInternalServerError, KindServerError},
		{http.StatusServiceUnavailable, KindServerError},
		{http.StatusTooManyRequests, KindClientError},
	}
	for _, tc := range cases {
		status := tc.status
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		c, u := newConn(t, srv.URL+"/data.bin", testConfig)

		_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 16})
		var herr *Error
		require.ErrorAs(t, err, &herr, "status %d", status)
		assert.Equal(t, tc.kind, herr.Kind, "status %d", status)

		c.Close()
		srv.Close()
	}
}

func TestRangeStartsAfterRequested(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 500-599/4096")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(make([]byte, 100))
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, Offset: 100, Length: 200})
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindRangeMismatch, herr.Kind)
}

func TestShortBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-99/100")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(make([]byte, 50))
	}))
	defer srv.Close()

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 100})
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindMalformed, herr.Kind)
}

func TestInactivityTimeout(t *testing.T) {
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "bytes 0-99/100")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write(make([]byte, 10))
		w.(http.Flusher).Flush()
		<-done // stall without closing the connection
	}))
	defer srv.Close()
	defer close(done) // unblock the handler before the server shuts down

	cfg := testConfig
	cfg.InactivityTimeout = 100 * time.Millisecond
	c, u := newConn(t, srv.URL+"/data.bin", cfg)
	defer c.Close()

	start := time.Now()
	_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 100})
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindInactivityTimeout, herr.Kind)
	assert.True(t, herr.Temporary())
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestConnectRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens on the port anymore

	c, u := newConn(t, srv.URL+"/data.bin", testConfig)
	defer c.Close()

	_, err := collect(t, c, Request{URL: u, Offset: 0, Length: 16})
	var herr *Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, KindConnectRefused, herr.Kind)
	assert.True(t, herr.ConnectClass())
}

func TestParseContentRange(t *testing.T) {
	start, err := parseContentRange("bytes 100-199/4096")
	require.NoError(t, err)
	assert.Equal(t, int64(100), start)

	_, err = parseContentRange("")
	assert.Error(t, err)
	_, err = parseContentRange("items 100-199/4096")
	assert.Error(t, err)
	_, err = parseContentRange("bytes x/4096")
	assert.Error(t, err)
}
