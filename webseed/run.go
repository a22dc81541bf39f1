package webseed

func (m *Manager) run() {
	defer close(m.doneC)
	for {
		select {
		case <-m.closeC:
			m.stop()
			return
		case indexes := <-m.requestC:
			for _, i := range indexes {
				if i < m.wanted.Len() {
					m.wanted.Set(i)
				}
			}
			m.completePadOnlyPieces()
			m.startDownloaders()
		case cfg := <-m.settingsC:
			m.cfg = cfg
			m.startDownloaders()
		case msg := <-m.messageC:
			m.handleMessage(msg)
		case pw := <-m.pieceWriterResultC:
			m.handlePieceWriteDone(pw)
		case e := <-m.retryC:
			m.handleRetry(e)
		case ch := <-m.statsC:
			ch <- m.stats()
		}
	}
}

// stop tears down all downloaders and releases resources. Downloader Close
// is synchronous: sockets are closed and goroutines joined before return.
func (m *Manager) stop() {
	for _, e := range m.entries {
		if e.Downloader != nil {
			e.Downloader.Close()
			e.Downloader = nil
		}
		e.DownloadSpeed.Stop()
	}
	// Piece writers in flight abandon their results when closeC is closed.
	for _, a := range m.assemblies {
		a.buf.Release()
	}
	m.assemblies = nil
	closeFiles(m.files)
	m.downloadSpeed.Stop()
	m.writesPerSecond.Stop()
}
