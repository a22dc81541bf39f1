package webseed

import (
	"github.com/cenkalti/webseed/internal/entry"
	"github.com/cenkalti/webseed/internal/httpconn"
	"github.com/cenkalti/webseed/internal/origin"
	"github.com/cenkalti/webseed/internal/piecewriter"
)

type pieceRange struct {
	Begin, End uint32 // Begin inclusive, End exclusive
}

func (r pieceRange) Len() int { return int(r.End) - int(r.Begin) }

// startDownloaders starts a download batch on every idle entry that has
// work, up to the connection cap. Entries are visited round-robin from the
// promotion cursor so a seed freed by a closing connection does not starve
// the others.
func (m *Manager) startDownloaders() {
	n := len(m.entries)
	for k := 0; k < n; k++ {
		if m.activeDownloads >= m.cfg.MaxWebSeedConnections {
			break
		}
		e := m.entries[(m.nextEntry+k)%n]
		if e.Disabled || e.Downloading() {
			continue
		}
		m.startDownloaderFor(e)
	}
}

func (m *Manager) startDownloaderFor(e *entry.Entry) bool {
	r := m.pickRange(e)
	if r == nil {
		return false
	}
	jobs, err := e.Plan(r.Begin, r.End)
	if err != nil {
		m.log.Errorln("cannot plan download:", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}
	if m.originsBusy(e, jobs) {
		// Another entry's connection already serves these origins; fetches
		// coalesce onto it instead of opening a duplicate connection.
		return false
	}
	for i := r.Begin; i < r.End; i++ {
		m.assigned[i] = e
	}
	d := entry.NewDownloader(e.Source, jobs, m.connConfig(), m.cfg.CloseRedundantConnections, m.log)
	e.Downloader = d
	e.LastError = nil
	m.activeDownloads++
	m.log.Debugf("downloading pieces %d-%d from %s", r.Begin, r.End, e.Source)
	go d.Run(m.messageC)
	return true
}

// pickRange returns the largest contiguous run of pieces this entry can
// fetch: wanted, not completed, not assigned elsewhere and not blacklisted.
// The run is capped to an even share of the remaining work so that other
// seeds can download the rest of the gap in parallel.
func (m *Manager) pickRange(e *entry.Entry) *pieceRange {
	var best *pieceRange
	var cur *pieceRange
	var needed int
	for i := uint32(0); i < m.res.NumPieces(); i++ {
		if m.pieceNeeded(e, i) {
			needed++
			if cur == nil {
				cur = &pieceRange{Begin: i, End: i + 1}
			} else {
				cur.End = i + 1
			}
			continue
		}
		if cur != nil && (best == nil || cur.Len() > best.Len()) {
			best = cur
		}
		cur = nil
	}
	if cur != nil && (best == nil || cur.Len() > best.Len()) {
		best = cur
	}
	if best == nil {
		return nil
	}
	slots := m.cfg.MaxWebSeedConnections
	if slots > len(m.entries) {
		slots = len(m.entries)
	}
	if slots < 1 {
		slots = 1
	}
	share := (needed + slots - 1) / slots
	if best.Len() > share {
		best.End = best.Begin + uint32(share)
	}
	return best
}

func (m *Manager) pieceNeeded(e *entry.Entry, i uint32) bool {
	p := &m.pieces[i]
	return m.wanted.Test(i) &&
		!p.Done &&
		!p.Writing &&
		m.assigned[i] == nil &&
		!e.Blacklisted(i)
}

// originsBusy returns true if every origin the jobs touch is already served
// by another entry's running downloader.
func (m *Manager) originsBusy(e *entry.Entry, jobs []entry.Job) bool {
	busy := make(map[origin.Key]bool)
	for _, other := range m.entries {
		if other == e || other.Downloader == nil {
			continue
		}
		for key := range other.Downloader.Origins() {
			busy[m.origins.Find(key)] = true
		}
	}
	if len(busy) == 0 {
		return false
	}
	for _, job := range jobs {
		if !busy[m.origins.Find(origin.FromURL(job.URL))] {
			return false
		}
	}
	return true
}

func (m *Manager) connConfig() httpconn.Config {
	return httpconn.Config{
		ConnectTimeout:    m.cfg.ConnectTimeout,
		InactivityTimeout: m.cfg.WebSeedInactivityTimeout,
		UserAgent:         m.cfg.UserAgent,
		Proxy:             m.proxyConfig(),
		Bucket:            m.bucket,
		Clock:             m.clk,
	}
}

func (m *Manager) proxyConfig() httpconn.ProxyConfig {
	var typ httpconn.ProxyType
	switch m.cfg.Proxy.Type {
	case "http":
		typ = httpconn.ProxyHTTP
	case "https":
		typ = httpconn.ProxyHTTPS
	case "socks5":
		typ = httpconn.ProxySOCKS5
	default:
		typ = httpconn.ProxyNone
	}
	return httpconn.ProxyConfig{
		Type:           typ,
		Host:           m.cfg.Proxy.Hostname,
		Port:           m.cfg.Proxy.Port,
		Username:       m.cfg.Proxy.Username,
		Password:       m.cfg.Proxy.Password,
		ProxyHostnames: m.cfg.Proxy.ProxyHostnames,
	}
}

// completePadOnlyPieces finishes pieces that lie entirely inside pad files.
// They contain only zero bytes, so no network fetch is needed.
func (m *Manager) completePadOnlyPieces() {
	for i := uint32(0); i < m.res.NumPieces(); i++ {
		p := &m.pieces[i]
		if !m.wanted.Test(i) || p.Done || p.Writing {
			continue
		}
		if _, ok := m.assemblies[i]; ok {
			continue
		}
		slices, err := m.res.Map(i, 0, m.res.PieceSize(i))
		if err != nil {
			continue
		}
		allPad := true
		for _, sl := range slices {
			if !sl.Pad {
				allPad = false
				break
			}
		}
		if !allPad {
			continue
		}
		a := m.newAssembly(i)
		delete(m.assemblies, i)
		p.Writing = true
		m.pendingWrites++
		pw := piecewriter.New(p, "", a.buf)
		go pw.Run(m.pieceWriterResultC, m.closeC, m.writesPerSecond, m.semWrite)
	}
}
