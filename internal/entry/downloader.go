package entry

import (
	"context"

	"github.com/cenkalti/webseed/internal/httpconn"
	"github.com/cenkalti/webseed/internal/logger"
	"github.com/cenkalti/webseed/internal/origin"
)

// Message is sent from a Downloader to the manager run loop. Exactly one of
// Chunk, Redirect and Err is set, unless the message only carries Done.
type Message struct {
	// Source is the base URL of the owning entry.
	Source string

	// Chunk is a blob of received payload bytes. Chunk data is owned by the
	// receiver.
	Chunk *httpconn.Chunk

	// Redirect reports a 3xx target to be recorded in the redirect table.
	Redirect *httpconn.RedirectError

	// Err is the classified failure that ended the batch.
	Err error

	// Stopped is true when the downloader gave up the rest of its batch and
	// the unfinished pieces should be re-planned.
	Stopped bool

	// Done is true when the downloader finished all jobs in its batch.
	Done bool
}

// Downloader downloads one batch of jobs for an entry. It owns at most one
// HTTP connection at a time; when consecutive jobs resolve to different
// origins the connection is replaced, never duplicated.
type Downloader struct {
	Source string

	jobs           []Job
	origins        map[origin.Key]struct{}
	cfg            httpconn.Config
	closeRedundant bool
	log            logger.Logger
	closeC         chan struct{}
	doneC          chan struct{}
}

// NewDownloader returns a Downloader for the given jobs.
func NewDownloader(source string, jobs []Job, cfg httpconn.Config, closeRedundant bool, l logger.Logger) *Downloader {
	origins := make(map[origin.Key]struct{}, 1)
	for _, job := range jobs {
		origins[origin.FromURL(job.URL)] = struct{}{}
	}
	return &Downloader{
		Source:         source,
		jobs:           jobs,
		origins:        origins,
		cfg:            cfg,
		closeRedundant: closeRedundant,
		log:            l,
		closeC:         make(chan struct{}),
		doneC:          make(chan struct{}),
	}
}

// Origins returns the set of origins the batch jobs resolve to.
func (d *Downloader) Origins() map[origin.Key]struct{} {
	return d.origins
}

// Close stops the Downloader and waits until its goroutine exits. In-flight
// reads are abandoned and the connection is closed.
func (d *Downloader) Close() {
	close(d.closeC)
	<-d.doneC
}

// Run downloads the jobs in order and sends results to resultC.
// Must be called in a separate goroutine.
func (d *Downloader) Run(resultC chan *Message) {
	defer close(d.doneC)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-d.doneC:
		case <-d.closeC:
		}
		cancel()
	}()

	var conn *httpconn.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for _, job := range d.jobs {
		if !d.processJob(ctx, &conn, job, resultC, 0) {
			return
		}
	}
	if conn != nil && d.closeRedundant {
		conn.CloseIdle()
	}
	d.send(resultC, &Message{Source: d.Source, Done: true})
}

// maxInPlaceRedirects bounds redirect chains within one request.
const maxInPlaceRedirects = 5

func (d *Downloader) processJob(ctx context.Context, conn **httpconn.Conn, job Job, resultC chan *Message, depth int) bool {
	jobOrigin := origin.FromURL(job.URL)
	if *conn == nil || (*conn).Origin() != jobOrigin {
		if *conn != nil {
			(*conn).Close()
		}
		c, err := httpconn.New(job.URL, d.cfg, d.log)
		if err != nil {
			d.send(resultC, &Message{Source: d.Source, Err: err, Stopped: true})
			return false
		}
		*conn = c
	}

	req := httpconn.Request{
		URL:       job.URL,
		FileIndex: job.FileIndex,
		Offset:    job.Offset,
		Length:    job.Length,
	}
	err := (*conn).Do(ctx, req, func(ch httpconn.Chunk) error {
		data := make([]byte, len(ch.Data))
		copy(data, ch.Data)
		if !d.send(resultC, &Message{Source: d.Source, Chunk: &httpconn.Chunk{
			FileIndex:  ch.FileIndex,
			FileOffset: ch.FileOffset,
			Data:       data,
		}}) {
			return context.Canceled
		}
		return nil
	})
	if err == nil {
		return true
	}
	if redirect, ok := err.(*httpconn.RedirectError); ok {
		// Same-origin redirects are re-issued in place on the live
		// connection; anything else stops the batch so the manager can
		// re-plan against the updated redirect table.
		d.send(resultC, &Message{Source: d.Source, Redirect: redirect})
		if origin.FromURL(redirect.Location) == (*conn).Origin() && depth < maxInPlaceRedirects {
			rewritten := job
			rewritten.URL = redirect.Location
			return d.processJob(ctx, conn, rewritten, resultC, depth+1)
		}
		d.send(resultC, &Message{Source: d.Source, Stopped: true})
		return false
	}
	if ctx.Err() != nil {
		// Closed by the manager; no one is interested in the error.
		return false
	}
	d.send(resultC, &Message{Source: d.Source, Err: err, Stopped: true})
	return false
}

func (d *Downloader) send(resultC chan *Message, msg *Message) bool {
	select {
	case <-d.closeC:
		return false
	default:
	}
	select {
	case resultC <- msg:
		return true
	case <-d.closeC:
		return false
	}
}
