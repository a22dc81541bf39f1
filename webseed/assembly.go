package webseed

import (
	"sort"

	"github.com/cenkalti/webseed/internal/bufferpool"
)

// assembly is a transient buffer collecting the bytes of one piece. The
// piece is complete when the filled spans cover [0, size).
type assembly struct {
	index uint32
	size  int64
	buf   bufferpool.Buffer
	spans []span
}

type span struct {
	start, end int64
}

func newAssembly(index uint32, size int64, buf bufferpool.Buffer) *assembly {
	return &assembly{index: index, size: size, buf: buf}
}

// zeroFill marks [off, off+length) as filled with zero bytes.
// Used to pre-fill pad file ranges before any network bytes arrive.
func (a *assembly) zeroFill(off, length int64) {
	for i := off; i < off+length; i++ {
		a.buf.Data[i] = 0
	}
	a.addSpan(off, off+length)
}

// add copies data into the buffer at off. Overlapping adds overwrite.
func (a *assembly) add(off int64, data []byte) {
	copy(a.buf.Data[off:], data)
	a.addSpan(off, off+int64(len(data)))
}

func (a *assembly) addSpan(start, end int64) {
	a.spans = append(a.spans, span{start, end})
	sort.Slice(a.spans, func(i, j int) bool { return a.spans[i].start < a.spans[j].start })
	merged := a.spans[:1]
	for _, s := range a.spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			if s.end > last.end {
				last.end = s.end
			}
		} else {
			merged = append(merged, s)
		}
	}
	a.spans = merged
}

func (a *assembly) complete() bool {
	return len(a.spans) == 1 && a.spans[0].start == 0 && a.spans[0].end == a.size
}
