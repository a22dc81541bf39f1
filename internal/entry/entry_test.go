package entry

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/webseed/internal/filemap"
	"github.com/cenkalti/webseed/internal/metainfo"
	"github.com/cenkalti/webseed/internal/origin"
)

// Layout with piece length 16:
//
//	piece 0: a[0:10) + pad[0:6)
//	piece 1: b[0:16)
//	piece 2: b[16:20) + c[0:5)
func newMultiFileInfo() *metainfo.Info {
	return &metainfo.Info{
		PieceLength: 16,
		Name:        "test",
		Files: []metainfo.FileDict{
			{Length: 10, Path: []string{"a"}},
			{Length: 6, Path: []string{".pad", "6"}},
			{Length: 20, Path: []string{"b"}},
			{Length: 5, Path: []string{"c"}},
		},
		TotalLength: 41,
		NumPieces:   3,
	}
}

func newTestEntry(t *testing.T, source string, info *metainfo.Info) *Entry {
	res := filemap.New(info)
	e, err := New(source, info, res, origin.NewSet(), time.Second)
	require.NoError(t, err)
	return e
}

func TestPlanSingleFile(t *testing.T) {
	info := &metainfo.Info{
		PieceLength: 16,
		Name:        "data",
		Length:      41,
		TotalLength: 41,
		NumPieces:   3,
	}
	e := newTestEntry(t, "http://example.com/data.bin", info)

	jobs, err := e.Plan(0, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "http://example.com/data.bin", jobs[0].URL.String())
	assert.Equal(t, 0, jobs[0].FileIndex)
	assert.Equal(t, int64(0), jobs[0].Offset)
	assert.Equal(t, int64(41), jobs[0].Length)
}

func TestPlanSkipsPads(t *testing.T) {
	e := newTestEntry(t, "http://example.com/seeds/", newMultiFileInfo())

	jobs, err := e.Plan(0, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "http://example.com/seeds/test/a", jobs[0].URL.String())
	assert.Equal(t, int64(10), jobs[0].Length)

	// Ranges of b from pieces 1 and 2 coalesce into one request.
	assert.Equal(t, "http://example.com/seeds/test/b", jobs[1].URL.String())
	assert.Equal(t, int64(0), jobs[1].Offset)
	assert.Equal(t, int64(20), jobs[1].Length)

	assert.Equal(t, "http://example.com/seeds/test/c", jobs[2].URL.String())
	assert.Equal(t, int64(5), jobs[2].Length)
}

func TestPlanPartialRange(t *testing.T) {
	e := newTestEntry(t, "http://example.com/seeds/", newMultiFileInfo())

	jobs, err := e.Plan(1, 2)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 2, jobs[0].FileIndex)
	assert.Equal(t, int64(0), jobs[0].Offset)
	assert.Equal(t, int64(16), jobs[0].Length)
}

func TestLearnBlacklistsSplitPieces(t *testing.T) {
	e := newTestEntry(t, "http://example.com/seeds/", newMultiFileInfo())

	for i := uint32(0); i < 3; i++ {
		assert.False(t, e.Blacklisted(i))
	}

	// File c moves to another origin. Piece 2 spans b and c, so it cannot be
	// fetched from this seed over a single connection anymore.
	loc, _ := url.Parse("http://mirror.example.com/c")
	e.Learn(3, loc)

	assert.False(t, e.Blacklisted(0))
	assert.False(t, e.Blacklisted(1))
	assert.True(t, e.Blacklisted(2))

	// Blacklisted pieces are excluded from plans.
	jobs, err := e.Plan(0, 3)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(16), jobs[1].Length)

	// File b follows to the same origin; piece 2 becomes fetchable again.
	loc2, _ := url.Parse("http://mirror.example.com/b")
	e.Learn(2, loc2)
	assert.False(t, e.Blacklisted(2))
}

func TestEffectiveURL(t *testing.T) {
	e := newTestEntry(t, "http://example.com/seeds/", newMultiFileInfo())

	u, err := e.EffectiveURL(0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/seeds/test/a", u.String())

	loc, _ := url.Parse("http://mirror.example.com/files/a")
	e.Learn(0, loc)
	u, err = e.EffectiveURL(0)
	require.NoError(t, err)
	assert.Equal(t, "http://mirror.example.com/files/a", u.String())
}

func TestRedirectChainUnitesOrigins(t *testing.T) {
	info := newMultiFileInfo()
	res := filemap.New(info)
	origins := origin.NewSet()
	e, err := New("http://example.com/seeds/", info, res, origins, time.Second)
	require.NoError(t, err)

	loc1, _ := url.Parse("http://m1.example.com/c")
	loc2, _ := url.Parse("http://m2.example.com/c")
	e.Learn(3, loc1)
	e.Learn(3, loc2)

	assert.True(t, origins.Same(origin.FromURL(loc1), origin.FromURL(loc2)))
}

func TestRetrySchedule(t *testing.T) {
	e := newTestEntry(t, "http://example.com/data.bin", &metainfo.Info{
		PieceLength: 16,
		Name:        "data",
		Length:      10,
		TotalLength: 10,
		NumPieces:   1,
	})

	// Delays are randomized around the exponential schedule.
	first := e.NextRetry()
	second := e.NextRetry()
	assert.InDelta(t, float64(time.Second), float64(first), float64(time.Second)/2)
	assert.InDelta(t, float64(2*time.Second), float64(second), float64(time.Second))

	e.ConnectAttempts = 3
	e.HTTPRetries = 1
	e.ResetRetry()
	assert.Equal(t, 0, e.ConnectAttempts)
	assert.Equal(t, 0, e.HTTPRetries)
	assert.InDelta(t, float64(time.Second), float64(e.NextRetry()), float64(time.Second)/2)
}

func TestAppendJobCap(t *testing.T) {
	u, _ := url.Parse("http://example.com/big.bin")
	var jobs []Job
	jobs = appendJob(jobs, u, 0, 0, maxRequestLength-4)
	jobs = appendJob(jobs, u, 0, maxRequestLength-4, 16)
	require.Len(t, jobs, 2)
	assert.Equal(t, int64(maxRequestLength-4), jobs[0].Length)
	assert.Equal(t, int64(maxRequestLength-4), jobs[1].Offset)
}
