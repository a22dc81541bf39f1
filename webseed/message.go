package webseed

import (
	"errors"
	"time"

	"github.com/cenkalti/webseed/internal/entry"
	"github.com/cenkalti/webseed/internal/httpconn"
	"github.com/cenkalti/webseed/internal/piecewriter"
)

var errCorruptPiece = errors.New("received corrupt piece")

func (m *Manager) handleMessage(msg *entry.Message) {
	e := m.entryBySource(msg.Source)
	if e == nil {
		return
	}
	if msg.Chunk != nil {
		m.handleChunk(e, msg.Chunk)
	}
	if msg.Redirect != nil {
		m.handleRedirect(e, msg.Redirect)
	}
	if msg.Err != nil {
		m.handleError(e, msg.Err)
	}
	if msg.Stopped || msg.Done || msg.Err != nil {
		m.closeDownloader(e)
		if msg.Done {
			e.ResetRetry()
		}
		m.startDownloaders()
	}
}

func (m *Manager) entryBySource(source string) *entry.Entry {
	for _, e := range m.entries {
		if e.Source == source {
			return e
		}
	}
	return nil
}

// handleChunk demultiplexes received file bytes back into piece space and
// fills the piece assembly buffers. A chunk may straddle a piece boundary.
func (m *Manager) handleChunk(e *entry.Entry, ch *httpconn.Chunk) {
	n := int64(len(ch.Data))
	e.DownloadSpeed.Mark(n)
	m.downloadSpeed.Mark(n)
	m.bytesDownloaded.Inc(n)

	data := ch.Data
	off := ch.FileOffset
	for len(data) > 0 {
		index, pieceOff := m.res.Position(ch.FileIndex, off)
		k := m.res.PieceSize(index) - pieceOff
		if k > int64(len(data)) {
			k = int64(len(data))
		}
		m.fill(index, pieceOff, data[:k], e)
		data = data[k:]
		off += k
	}
}

func (m *Manager) fill(index uint32, off int64, data []byte, e *entry.Entry) {
	p := &m.pieces[index]
	if p.Done || p.Writing {
		// Duplicate delivery after reassignment. Drop it.
		return
	}
	a, ok := m.assemblies[index]
	if !ok {
		a = m.newAssembly(index)
	}
	a.add(off, data)
	if !a.complete() {
		return
	}
	delete(m.assemblies, index)
	p.Writing = true
	m.pendingWrites++
	pw := piecewriter.New(p, e.Source, a.buf)
	go pw.Run(m.pieceWriterResultC, m.closeC, m.writesPerSecond, m.semWrite)
}

// newAssembly allocates the assembly buffer for a piece and pre-fills pad
// file ranges with zeroes; pad bytes never arrive from the network.
func (m *Manager) newAssembly(index uint32) *assembly {
	size := m.res.PieceSize(index)
	a := newAssembly(index, size, m.pool.Get(int(size)))
	slices, err := m.res.Map(index, 0, size)
	if err == nil {
		var off int64
		for _, sl := range slices {
			if sl.Pad {
				a.zeroFill(off, sl.Length)
			}
			off += sl.Length
		}
	}
	m.assemblies[index] = a
	return a
}

func (m *Manager) handlePieceWriteDone(pw *piecewriter.PieceWriter) {
	m.pendingWrites--
	p := pw.Piece
	p.Writing = false
	defer pw.Buffer.Release()
	if !pw.HashOK {
		m.log.Warningf("piece #%d from %s failed hash check", p.Index, pw.Source)
		if e := m.entryBySource(pw.Source); e != nil {
			m.alert(URLSeedErrorAlert{URL: e.Source, Err: errCorruptPiece})
		}
		m.unassign(p.Index)
		m.startDownloaders()
		return
	}
	if pw.Error != nil {
		m.log.Errorln("cannot write piece:", pw.Error)
		m.unassign(p.Index)
		m.startDownloaders()
		return
	}
	p.Done = true
	m.completed.Set(p.Index)
	m.unassign(p.Index)
	m.log.Debugf("piece #%d is complete", p.Index)
	m.checkFinished()
}

func (m *Manager) checkFinished() {
	if m.finished || !m.completed.All() {
		return
	}
	m.finished = true
	m.alert(TorrentFinishedAlert{})
}

func (m *Manager) unassign(index uint32) {
	m.assigned[index] = nil
}

// handleRedirect records the redirect target in the entry's redirect table.
// Pieces that become unfetchable because their files now live on different
// origins are blacklisted for this entry; the torrent can still complete via
// other sources.
func (m *Manager) handleRedirect(e *entry.Entry, redirect *httpconn.RedirectError) {
	m.log.Debugf("file #%d of %s redirected to %s", redirect.FileIndex, e.Source, redirect.Location)
	e.Learn(redirect.FileIndex, redirect.Location)
}

func (m *Manager) handleError(e *entry.Entry, err error) {
	e.LastError = err
	var httpErr *httpconn.Error
	if !errors.As(err, &httpErr) {
		m.disableFatal(e, err)
		return
	}
	if httpErr.Kind == httpconn.KindInactivityTimeout {
		m.alert(PeerDisconnectedAlert{URL: e.Source, Reason: ReasonTimedOutInactivity})
	} else {
		m.alert(URLSeedErrorAlert{URL: e.Source, Err: err})
	}
	switch {
	case httpErr.ConnectClass():
		e.ConnectAttempts++
		if e.ConnectAttempts >= m.cfg.MaxRetryAttempts {
			m.disableFatal(e, err)
			return
		}
		m.disableWithRetry(e, e.NextRetry())
	case httpErr.Kind == httpconn.KindClientError || httpErr.Kind == httpconn.KindServerError:
		// Re-queue once; a second failure is fatal.
		e.HTTPRetries++
		if e.HTTPRetries > 1 {
			m.disableFatal(e, err)
			return
		}
		m.disableWithRetry(e, e.NextRetry())
	case httpErr.Temporary():
		m.disableWithRetry(e, e.NextRetry())
	default:
		// FileUnavailable, RangeMismatch, Malformed.
		m.disableFatal(e, err)
	}
}

// disableFatal removes the entry for the remainder of the session. It will
// re-appear when the torrent is loaded again.
func (m *Manager) disableFatal(e *entry.Entry, err error) {
	m.log.Debugf("disabling url seed %s: %s", e.Source, err)
	e.Disabled = true
	e.DisabledAt = time.Now()
}

func (m *Manager) disableWithRetry(e *entry.Entry, d time.Duration) {
	e.Disabled = true
	e.DisabledAt = time.Now()
	m.log.Debugf("url seed %s failed, retrying in %s", e.Source, d)
	go m.notifyRetry(e, d)
}

func (m *Manager) notifyRetry(e *entry.Entry, d time.Duration) {
	select {
	case <-m.clk.After(d):
		select {
		case m.retryC <- e:
		case <-m.closeC:
		}
	case <-m.closeC:
	}
}

func (m *Manager) handleRetry(e *entry.Entry) {
	e.Disabled = false
	m.startDownloaders()
}

// closeDownloader stops the entry's downloader and returns its unfinished
// pieces to the pool so another entry can pick them up.
func (m *Manager) closeDownloader(e *entry.Entry) {
	if e.Downloader == nil {
		return
	}
	e.Downloader.Close()
	e.Downloader = nil
	m.activeDownloads--
	for i := range m.entries {
		if m.entries[i] == e {
			m.nextEntry = (i + 1) % len(m.entries)
			break
		}
	}
	for i := uint32(0); i < m.res.NumPieces(); i++ {
		if m.assigned[i] == e && !m.pieces[i].Done && !m.pieces[i].Writing {
			m.assigned[i] = nil
		}
	}
}
