package webseed

import "time"

// Stats is a snapshot of the download state, taken by the run loop.
type Stats struct {
	// Total number of bytes received from all sources.
	BytesDownloaded int64
	// Exponentially weighted moving average of the receive rate, bytes/s.
	DownloadSpeed int
	// Exponentially weighted moving average of the disk write rate, bytes/s.
	WriteSpeed int
	// Number of downloaders with an open connection to a seed.
	ActiveConnections int
	// Number of piece writes queued or in flight.
	PendingWrites int

	CompletedPieces uint32
	TotalPieces     uint32

	Seeds []SeedStats
}

// SeedStats is the per-source part of Stats.
type SeedStats struct {
	URL           string
	DownloadSpeed int
	Downloading   bool
	Disabled      bool
	DisabledFor   time.Duration
	Error         string
}

func (m *Manager) stats() Stats {
	s := Stats{
		BytesDownloaded:   m.bytesDownloaded.Count(),
		DownloadSpeed:     int(m.downloadSpeed.Rate1()),
		WriteSpeed:        int(m.writesPerSecond.Rate1()),
		ActiveConnections: m.activeDownloads,
		PendingWrites:     m.pendingWrites,
		CompletedPieces:   m.completed.Count(),
		TotalPieces:       m.res.NumPieces(),
		Seeds:             make([]SeedStats, 0, len(m.entries)),
	}
	now := time.Now()
	for _, e := range m.entries {
		ss := SeedStats{
			URL:           e.Source,
			DownloadSpeed: int(e.DownloadSpeed.Rate1()),
			Downloading:   e.Downloading(),
			Disabled:      e.Disabled,
		}
		if e.Disabled {
			ss.DisabledFor = now.Sub(e.DisabledAt)
		}
		if e.LastError != nil {
			ss.Error = e.LastError.Error()
		}
		s.Seeds = append(s.Seeds, ss)
	}
	return s
}
