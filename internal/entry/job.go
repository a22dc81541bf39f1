package entry

import (
	"net/url"
)

// maxRequestLength caps how many bytes a single HTTP range request may cover.
const maxRequestLength = 16 << 20

// Job is one HTTP range request to be issued: a contiguous byte range of a
// single file at its effective URL.
type Job struct {
	URL       *url.URL
	FileIndex int
	Offset    int64
	Length    int64
}

// appendJob coalesces adjacent ranges of the same file into one request, up
// to maxRequestLength, and starts a new job otherwise.
func appendJob(jobs []Job, u *url.URL, fileIndex int, offset, length int64) []Job {
	if n := len(jobs); n > 0 {
		last := &jobs[n-1]
		if last.FileIndex == fileIndex &&
			last.URL.String() == u.String() &&
			last.Offset+last.Length == offset &&
			last.Length+length <= maxRequestLength {
			last.Length += length
			return jobs
		}
	}
	return append(jobs, Job{URL: u, FileIndex: fileIndex, Offset: offset, Length: length})
}
