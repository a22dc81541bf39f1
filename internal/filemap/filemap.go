// Package filemap translates between torrent piece space and file byte space.
package filemap

import (
	"errors"
	"sort"

	"github.com/cenkalti/webseed/internal/metainfo"
)

// ErrInvalidRange indicates that the requested range is outside of torrent bounds.
var ErrInvalidRange = errors.New("range outside torrent bounds")

// Slice is a contiguous byte range inside a single file.
type Slice struct {
	FileIndex  int
	FileOffset int64
	Length     int64
	Pad        bool // synthetic zero bytes, never fetched from the network
}

type file struct {
	start  int64 // absolute offset of the first byte among all files
	length int64
	path   []string
	pad    bool
}

// Resolver maps piece-space ranges onto file-space slices and back.
type Resolver struct {
	pieceLength int64
	totalLength int64
	numPieces   uint32
	files       []file
}

// New returns a Resolver for the torrent layout in info.
func New(info *metainfo.Info) *Resolver {
	r := &Resolver{
		pieceLength: int64(info.PieceLength),
		totalLength: info.TotalLength,
		numPieces:   info.NumPieces,
	}
	var pos int64
	for _, f := range info.GetFiles() {
		r.files = append(r.files, file{
			start:  pos,
			length: f.Length,
			path:   f.Path,
			pad:    f.Padding(),
		})
		pos += f.Length
	}
	return r
}

// NumPieces returns the number of pieces in the torrent.
func (r *Resolver) NumPieces() uint32 { return r.numPieces }

// NumFiles returns the number of files in the torrent, pad files included.
func (r *Resolver) NumFiles() int { return len(r.files) }

// PieceSize returns the length of the piece at index.
// All pieces have the same length except the last piece may be shorter.
func (r *Resolver) PieceSize(index uint32) int64 {
	if index == r.numPieces-1 {
		if mod := r.totalLength % r.pieceLength; mod != 0 {
			return mod
		}
	}
	return r.pieceLength
}

// FileLength returns the byte length of the file at index.
func (r *Resolver) FileLength(index int) int64 { return r.files[index].length }

// FilePath returns the path segments of the file at index.
func (r *Resolver) FilePath(index int) []string { return r.files[index].path }

// IsPad returns true if the file at index is a pad file.
func (r *Resolver) IsPad(index int) bool { return r.files[index].pad }

// Map expands the range [offset, offset+length) of the piece at index into
// an ordered list of file slices. Lengths of returned slices sum to length.
// Pad file slices are included but marked; callers skip network fetches for them.
func (r *Resolver) Map(index uint32, offset, length int64) ([]Slice, error) {
	if index >= r.numPieces || offset < 0 || length <= 0 {
		return nil, ErrInvalidRange
	}
	if offset+length > r.PieceSize(index) {
		return nil, ErrInvalidRange
	}
	abs := int64(index)*r.pieceLength + offset
	i := sort.Search(len(r.files), func(i int) bool {
		return r.files[i].start+r.files[i].length > abs
	})
	var slices []Slice
	for length > 0 {
		if i >= len(r.files) {
			return nil, ErrInvalidRange
		}
		f := &r.files[i]
		if f.length == 0 {
			i++
			continue
		}
		fileOffset := abs - f.start
		n := f.length - fileOffset
		if n > length {
			n = length
		}
		slices = append(slices, Slice{
			FileIndex:  i,
			FileOffset: fileOffset,
			Length:     n,
			Pad:        f.pad,
		})
		abs += n
		length -= n
		i++
	}
	return slices, nil
}

// Position is the inverse of Map for a single byte: it returns the piece
// index and the offset within that piece of the byte at fileOffset in the
// file at fileIndex.
func (r *Resolver) Position(fileIndex int, fileOffset int64) (piece uint32, offset int64) {
	abs := r.files[fileIndex].start + fileOffset
	return uint32(abs / r.pieceLength), abs % r.pieceLength
}
