// Package webseed downloads torrent piece data from HTTP servers advertised
// as URL seeds (BEP 19) and feeds verified pieces to storage.
package webseed

import (
	"errors"
	"path/filepath"
	"sync"

	"github.com/andres-erbsen/clock"
	"github.com/juju/ratelimit"
	"github.com/rcrowley/go-metrics"

	"github.com/cenkalti/webseed/internal/bitfield"
	"github.com/cenkalti/webseed/internal/bufferpool"
	"github.com/cenkalti/webseed/internal/entry"
	"github.com/cenkalti/webseed/internal/filemap"
	"github.com/cenkalti/webseed/internal/logger"
	"github.com/cenkalti/webseed/internal/metainfo"
	"github.com/cenkalti/webseed/internal/origin"
	"github.com/cenkalti/webseed/internal/piece"
	"github.com/cenkalti/webseed/internal/piecewriter"
	"github.com/cenkalti/webseed/internal/semaphore"
	"github.com/cenkalti/webseed/internal/storage"
)

var errNoSources = errors.New("torrent has no usable url seeds")

// Manager owns the web seed entries of one torrent. It assigns piece ranges
// to entries, enforces the global connection cap, assembles and verifies
// received pieces and writes them to storage.
//
// All mutable state is owned by a single run loop goroutine; public methods
// communicate with it over channels.
type Manager struct {
	cfg     Config
	info    *metainfo.Info
	res     *filemap.Resolver
	files   []storage.File
	pieces  []piece.Piece
	entries []*entry.Entry
	origins *origin.Set

	completed bitfield.BitField
	wanted    bitfield.BitField
	assigned  []*entry.Entry

	assemblies map[uint32]*assembly
	pool       *bufferpool.Pool
	bucket     *ratelimit.Bucket
	clk        clock.Clock
	semWrite   *semaphore.Semaphore

	bytesDownloaded metrics.Counter
	downloadSpeed   metrics.Meter
	writesPerSecond metrics.Meter

	activeDownloads int
	pendingWrites   int
	nextEntry       int
	finished        bool

	alertC             chan Alert
	messageC           chan *entry.Message
	pieceWriterResultC chan *piecewriter.PieceWriter
	requestC           chan []uint32
	settingsC          chan Config
	retryC             chan *entry.Entry
	statsC             chan chan Stats

	closeC    chan struct{}
	doneC     chan struct{}
	closeOnce sync.Once

	log logger.Logger
}

// New returns a Manager for the torrent described by info, downloading from
// sources into sto. Pieces are not requested until RequestPieces or
// RequestAll is called.
func New(info *metainfo.Info, sources []string, sto storage.Storage, cfg Config) (*Manager, error) {
	return newManager(info, sources, sto, cfg, clock.New())
}

func newManager(info *metainfo.Info, sources []string, sto storage.Storage, cfg Config, clk clock.Clock) (*Manager, error) {
	cfg.fillDefaults()
	if len(sources) == 0 {
		return nil, errNoSources
	}
	res := filemap.New(info)
	files, err := openFiles(res, sto)
	if err != nil {
		return nil, err
	}
	pieces, err := piece.NewPieces(info, res, files)
	if err != nil {
		closeFiles(files)
		return nil, err
	}
	origins := origin.NewSet()
	entries := make([]*entry.Entry, 0, len(sources))
	for _, src := range sources {
		e, err := entry.New(src, info, res, origins, cfg.URLSeedWaitRetry)
		if err != nil {
			closeFiles(files)
			return nil, err
		}
		entries = append(entries, e)
	}
	var bucket *ratelimit.Bucket
	if cfg.DownloadRateLimit > 0 {
		bucket = ratelimit.NewBucketWithRate(float64(cfg.DownloadRateLimit), cfg.DownloadRateLimit)
	}
	m := &Manager{
		cfg:                cfg,
		info:               info,
		res:                res,
		files:              files,
		pieces:             pieces,
		entries:            entries,
		origins:            origins,
		completed:          bitfield.New(res.NumPieces()),
		wanted:             bitfield.New(res.NumPieces()),
		assigned:           make([]*entry.Entry, res.NumPieces()),
		assemblies:         make(map[uint32]*assembly),
		pool:               bufferpool.New(int(info.PieceLength)),
		bucket:             bucket,
		clk:                clk,
		semWrite:           semaphore.New(cfg.ParallelWrites),
		bytesDownloaded:    metrics.NewCounter(),
		downloadSpeed:      metrics.NewMeter(),
		writesPerSecond:    metrics.NewMeter(),
		alertC:             make(chan Alert, 64),
		messageC:           make(chan *entry.Message),
		pieceWriterResultC: make(chan *piecewriter.PieceWriter),
		requestC:           make(chan []uint32),
		settingsC:          make(chan Config),
		retryC:             make(chan *entry.Entry),
		statsC:             make(chan chan Stats),
		closeC:             make(chan struct{}),
		doneC:              make(chan struct{}),
		log:                logger.New("webseed " + info.Name),
	}
	go m.run()
	return m, nil
}

func openFiles(res *filemap.Resolver, sto storage.Storage) ([]storage.File, error) {
	files := make([]storage.File, res.NumFiles())
	for i := 0; i < res.NumFiles(); i++ {
		if res.IsPad(i) {
			files[i] = storage.PaddingFile{}
			continue
		}
		name := filepath.Join(res.FilePath(i)...)
		f, _, err := sto.Open(name, res.FileLength(i))
		if err != nil {
			closeFiles(files[:i])
			return nil, err
		}
		files[i] = f
	}
	return files, nil
}

func closeFiles(files []storage.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}

// RequestPieces marks the given pieces as wanted. This is the piece picker's
// hint; the manager decides which entry fetches which piece.
func (m *Manager) RequestPieces(indexes ...uint32) {
	select {
	case m.requestC <- indexes:
	case <-m.closeC:
	}
}

// RequestAll marks every piece of the torrent as wanted.
func (m *Manager) RequestAll() {
	indexes := make([]uint32, m.res.NumPieces())
	for i := range indexes {
		indexes[i] = uint32(i)
	}
	m.RequestPieces(indexes...)
}

// ApplySettings replaces the manager configuration. New limits apply
// immediately; new timeouts and proxy settings apply to new connections.
func (m *Manager) ApplySettings(cfg Config) {
	cfg.fillDefaults()
	select {
	case m.settingsC <- cfg:
	case <-m.closeC:
	}
}

// Alerts returns the channel the manager posts events to. The channel is
// buffered; alerts are dropped when the receiver falls too far behind.
func (m *Manager) Alerts() <-chan Alert {
	return m.alertC
}

// Stats returns a snapshot of download statistics.
func (m *Manager) Stats() Stats {
	ch := make(chan Stats, 1)
	select {
	case m.statsC <- ch:
		return <-ch
	case <-m.closeC:
		return Stats{}
	}
}

// Close cancels all in-flight connections and releases resources. It
// returns only after everything is torn down.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.closeC)
	})
	<-m.doneC
}

func (m *Manager) alert(a Alert) {
	select {
	case m.alertC <- a:
	default:
		m.log.Warningln("alert channel full, dropping:", a.String())
	}
}
