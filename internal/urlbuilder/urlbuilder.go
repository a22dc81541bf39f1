// Package urlbuilder builds web seed request URLs per BEP 19.
package urlbuilder

import (
	"strings"

	"github.com/cenkalti/webseed/internal/metainfo"
)

// Build returns the absolute URL for downloading the file at fileIndex from
// the web seed at base.
//
// For a single-file torrent the base URL refers directly to the file, unless
// it ends with "/" in which case the torrent name is appended. For a
// multi-file torrent the base URL is a directory and the torrent name plus
// the file path inside the torrent is appended, each segment percent-encoded.
func Build(base string, info *metainfo.Info, filePath []string) string {
	if !info.MultiFile() {
		if strings.HasSuffix(base, "/") {
			return base + EscapeSegment(info.Name)
		}
		return base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	segments := make([]string, 0, len(filePath)+1)
	segments = append(segments, info.Name)
	segments = append(segments, filePath...)
	return base + EscapePath(segments)
}

// EscapePath percent-encodes each segment and joins them with "/".
func EscapePath(segments []string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = EscapeSegment(s)
	}
	return strings.Join(escaped, "/")
}

const upperhex = "0123456789ABCDEF"

// EscapeSegment percent-encodes a single path segment. Unreserved characters
// per RFC 3986 section 2.3 pass through, every other byte becomes %XX.
// Stricter than url.PathEscape, which leaves sub-delims such as ' unescaped.
func EscapeSegment(s string) string {
	var hexCount int
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			hexCount++
		}
	}
	if hexCount == 0 {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s) + 2*hexCount)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			sb.WriteByte(c)
		} else {
			sb.WriteByte('%')
			sb.WriteByte(upperhex[c>>4])
			sb.WriteByte(upperhex[c&0xf])
		}
	}
	return sb.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z':
		return true
	case 'A' <= c && c <= 'Z':
		return true
	case '0' <= c && c <= '9':
		return true
	case c == '-' || c == '.' || c == '_' || c == '~':
		return true
	}
	return false
}
