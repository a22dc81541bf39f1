// Package piecewriter verifies downloaded pieces and writes them to disk.
package piecewriter

import (
	"crypto/sha1" // nolint: gosec

	"github.com/rcrowley/go-metrics"

	"github.com/cenkalti/webseed/internal/bufferpool"
	"github.com/cenkalti/webseed/internal/piece"
	"github.com/cenkalti/webseed/internal/semaphore"
)

// PieceWriter writes the data in the buffer to disk.
type PieceWriter struct {
	Piece  *piece.Piece
	Source string
	Buffer bufferpool.Buffer

	HashOK bool
	Error  error
}

// New returns new PieceWriter for a given piece.
func New(p *piece.Piece, source string, buf bufferpool.Buffer) *PieceWriter {
	return &PieceWriter{
		Piece:  p,
		Source: source,
		Buffer: buf,
	}
}

// Run checks the hash, then writes the data in the buffer to the disk.
// Run must be called in a separate goroutine; the result is sent to resultC.
func (w *PieceWriter) Run(resultC chan *PieceWriter, closeC chan struct{}, writesPerSecond metrics.Meter, sem *semaphore.Semaphore) {
	w.HashOK = w.Piece.VerifyHash(w.Buffer.Data, sha1.New()) // nolint: gosec
	if w.HashOK {
		writesPerSecond.Mark(int64(len(w.Buffer.Data)))
		sem.Wait()
		_, w.Error = w.Piece.Data.Write(w.Buffer.Data)
		sem.Signal()
	}
	select {
	case resultC <- w:
	case <-closeC:
	}
}
