package storage

// PaddingFile is a File of synthetic zero bytes. Pad files take no space on
// disk; reads serve zeroes for clients that do not understand padding.
type PaddingFile struct{}

var _ File = PaddingFile{}

func (f PaddingFile) ReadAt(p []byte, off int64) (n int, err error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

func (f PaddingFile) WriteAt(p []byte, off int64) (n int, err error) {
	// Writes are accepted and discarded so a piece overlapping a pad file
	// can be written with a single Sections.Write call.
	return len(p), nil
}

func (f PaddingFile) Close() error {
	return nil
}
