// Package entry holds the per-URL-seed state machine.
package entry

import (
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v3"
	"github.com/rcrowley/go-metrics"

	"github.com/cenkalti/webseed/internal/bitfield"
	"github.com/cenkalti/webseed/internal/filemap"
	"github.com/cenkalti/webseed/internal/metainfo"
	"github.com/cenkalti/webseed/internal/origin"
	"github.com/cenkalti/webseed/internal/urlbuilder"
)

// Entry is the state of one URL seed of a torrent. All fields are owned by
// the manager run loop; the downloader goroutine communicates with it only
// through messages.
type Entry struct {
	// Source is the base URL advertised in the torrent.
	Source string

	// Disabled is set when the seed failed fatally or is backing off.
	Disabled   bool
	DisabledAt time.Time
	LastError  error

	// Downloader is the running download batch, nil when idle.
	Downloader *Downloader

	// DownloadSpeed of this source.
	DownloadSpeed metrics.Meter

	base      *url.URL
	info      *metainfo.Info
	res       *filemap.Resolver
	origins   *origin.Set
	redirects map[int]*url.URL
	blacklist bitfield.BitField

	// ConnectAttempts counts consecutive connect-class failures.
	ConnectAttempts int
	// HTTPRetries counts consecutive retriable HTTP failures. A request is
	// re-queued once; a second failure is fatal.
	HTTPRetries int

	backoff backoff.BackOff
}

// New returns an Entry for the seed at source. origins is the redirect
// coalescing set shared by all entries of the torrent.
func New(source string, info *metainfo.Info, res *filemap.Resolver, origins *origin.Set, waitRetry time.Duration) (*Entry, error) {
	base, err := url.Parse(source)
	if err != nil {
		return nil, err
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = waitRetry
	bo.Multiplier = 2
	bo.MaxInterval = 10 * time.Minute
	bo.MaxElapsedTime = 0 // no give-up deadline, the attempt cap handles that
	return &Entry{
		Source:        source,
		base:          base,
		info:          info,
		res:           res,
		origins:       origins,
		redirects:     make(map[int]*url.URL),
		blacklist:     bitfield.New(res.NumPieces()),
		DownloadSpeed: metrics.NewMeter(),
		backoff:       bo,
	}, nil
}

// Downloading returns true if a download batch is running.
func (e *Entry) Downloading() bool {
	return e.Downloader != nil
}

// NextRetry returns how long to wait before the next retry after a transient
// failure. The delay grows exponentially up to a cap.
func (e *Entry) NextRetry() time.Duration {
	return e.backoff.NextBackOff()
}

// ResetRetry resets the back-off schedule and failure counters after a
// successful download.
func (e *Entry) ResetRetry() {
	e.backoff.Reset()
	e.ConnectAttempts = 0
	e.HTTPRetries = 0
}

// EffectiveURL returns the URL the file at fileIndex should be fetched from:
// the learned redirect target if any, the URL built from the base otherwise.
func (e *Entry) EffectiveURL(fileIndex int) (*url.URL, error) {
	if u, ok := e.redirects[fileIndex]; ok {
		return u, nil
	}
	s := urlbuilder.Build(e.Source, e.info, e.res.FilePath(fileIndex))
	return url.Parse(s)
}

// Learn records a redirect for the file at fileIndex and updates the piece
// blacklist. Redirect targets persist for the lifetime of the entry. When a
// file redirects a second time, both targets served the same bytes, so their
// origin groups are united and pieces spanning them stay fetchable.
func (e *Entry) Learn(fileIndex int, location *url.URL) {
	if old, ok := e.redirects[fileIndex]; ok {
		e.origins.Union(origin.FromURL(old), origin.FromURL(location))
	}
	e.redirects[fileIndex] = location
	e.origins.Find(origin.FromURL(location))
	e.updateBlacklist()
}

// Blacklisted returns true if the piece cannot be served by this seed
// because its bytes span files on different origins.
func (e *Entry) Blacklisted(index uint32) bool {
	return e.blacklist.Test(index)
}

// updateBlacklist recomputes which pieces are unfetchable from this seed. A
// piece is fetchable only if every byte of it is obtainable from one
// connection: its non-pad slices must map to effective URLs on a single
// origin group.
func (e *Entry) updateBlacklist() {
	e.blacklist.ClearAll()
	for i := uint32(0); i < e.res.NumPieces(); i++ {
		slices, err := e.res.Map(i, 0, e.res.PieceSize(i))
		if err != nil {
			continue
		}
		var first origin.Key
		var multi bool
		for _, sl := range slices {
			if sl.Pad {
				continue
			}
			u, err := e.EffectiveURL(sl.FileIndex)
			if err != nil {
				multi = true
				break
			}
			key := e.origins.Find(origin.FromURL(u))
			if first == "" {
				first = key
			} else if key != first {
				multi = true
				break
			}
		}
		if multi {
			e.blacklist.Set(i)
		}
	}
}

// Plan expands the piece range [begin, end) into download jobs. Pad file
// slices and blacklisted pieces are skipped; adjacent ranges of the same
// file coalesce into a single request.
func (e *Entry) Plan(begin, end uint32) ([]Job, error) {
	var jobs []Job
	for i := begin; i < end; i++ {
		if e.blacklist.Test(i) {
			continue
		}
		slices, err := e.res.Map(i, 0, e.res.PieceSize(i))
		if err != nil {
			return nil, err
		}
		for _, sl := range slices {
			if sl.Pad {
				continue
			}
			u, err := e.EffectiveURL(sl.FileIndex)
			if err != nil {
				return nil, err
			}
			jobs = appendJob(jobs, u, sl.FileIndex, sl.FileOffset, sl.Length)
		}
	}
	return jobs, nil
}
