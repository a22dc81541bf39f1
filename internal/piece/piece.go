// Package piece models a torrent piece and its place in the file layout.
package piece

import (
	"bytes"
	"hash"

	"github.com/cenkalti/webseed/internal/filemap"
	"github.com/cenkalti/webseed/internal/filesection"
	"github.com/cenkalti/webseed/internal/metainfo"
	"github.com/cenkalti/webseed/internal/storage"
)

// Piece of a torrent.
type Piece struct {
	Index   uint32               // index in torrent
	Length  uint32               // always equal to PieceLength except last piece
	Data    filesection.Sections // the place to write downloaded bytes
	Done    bool                 // hash is correct and written to disk
	Writing bool                 // a write is in progress
	hash    []byte               // correct hash value
}

// NewPieces builds the piece list for the torrent described by info, with
// each piece's file sections pointing into files. files must have one entry
// per torrent file; pad file entries must be storage.PaddingFile values.
func NewPieces(info *metainfo.Info, res *filemap.Resolver, files []storage.File) ([]Piece, error) {
	pieces := make([]Piece, res.NumPieces())
	for i := uint32(0); i < res.NumPieces(); i++ {
		size := res.PieceSize(i)
		slices, err := res.Map(i, 0, size)
		if err != nil {
			return nil, err
		}
		p := Piece{
			Index:  i,
			Length: uint32(size),
			hash:   info.PieceHash(i),
		}
		for _, sl := range slices {
			p.Data = append(p.Data, filesection.Section{
				File:   files[sl.FileIndex],
				Offset: sl.FileOffset,
				Length: sl.Length,
			})
		}
		pieces[i] = p
	}
	return pieces, nil
}

// VerifyHash returns true if the hash of data matches the piece hash in the torrent.
func (p *Piece) VerifyHash(data []byte, h hash.Hash) bool {
	if uint32(len(data)) != p.Length {
		return false
	}
	_, _ = h.Write(data)
	sum := h.Sum(nil)
	return bytes.Equal(sum, p.hash)
}
