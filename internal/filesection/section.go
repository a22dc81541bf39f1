// Package filesection groups contiguous sections of files.
package filesection

import "io"

// Section of a file.
type Section struct {
	File   ReadWriterAt
	Offset int64
	Length int64
}

// ReadWriterAt combines positional read and write.
type ReadWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Sections is contiguous sections of files. When piece hashes in torrent file
// are calculated, all files are concatenated and split into pieces in length
// specified in the torrent file; each piece maps onto one Sections value.
type Sections []Section

// ReadFull reads len(buf) bytes from the concatenated sections into buf.
func (s Sections) ReadFull(buf []byte) error {
	readers := make([]io.Reader, len(s))
	for i := range s {
		readers[i] = io.NewSectionReader(s[i].File, s[i].Offset, s[i].Length)
	}
	r := io.MultiReader(readers...)
	_, err := io.ReadFull(r, buf)
	return err
}

// Write implements io.Writer interface.
// It writes the bytes in p into files in s.
// Used when writing a downloaded piece after hash check is done.
// len(p) must be equal to total length of all sections in s.
func (s Sections) Write(p []byte) (n int, err error) {
	var m int
	for _, sec := range s {
		m, err = sec.File.WriteAt(p[:sec.Length], sec.Offset)
		n += m
		if err != nil {
			return
		}
		if int64(m) < sec.Length {
			err = io.ErrShortWrite
			return
		}
		p = p[m:]
	}
	return
}
