package metainfo

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/bencode"
)

func encodeTorrent(t *testing.T, torrent map[string]interface{}) []byte {
	b, err := bencode.EncodeBytes(torrent)
	require.NoError(t, err)
	return b
}

func singleFileInfo() map[string]interface{} {
	return map[string]interface{}{
		"piece length": 16,
		"pieces":       string(bytes.Repeat([]byte{0xab}, 20)),
		"name":         "seed'file",
		"length":       10,
	}
}

func TestNew(t *testing.T) {
	b := encodeTorrent(t, map[string]interface{}{
		"info": singleFileInfo(),
		"url-list": []string{
			"http://example.com/seed/",
			"udp://tracker.example.com/",
			"https://mirror.example.com/seed/",
		},
	})
	mi, err := New(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, "seed'file", mi.Info.Name)
	assert.Equal(t, int64(10), mi.Info.TotalLength)
	assert.Equal(t, uint32(1), mi.Info.NumPieces)
	assert.False(t, mi.Info.MultiFile())
	// Only HTTP seeds are supported.
	assert.Equal(t, []string{"http://example.com/seed/", "https://mirror.example.com/seed/"}, mi.URLList)
}

func TestNewURLListString(t *testing.T) {
	b := encodeTorrent(t, map[string]interface{}{
		"info":     singleFileInfo(),
		"url-list": "http://example.com/seed/",
	})
	mi, err := New(bytes.NewReader(b))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://example.com/seed/"}, mi.URLList)
}

func TestNewNoInfo(t *testing.T) {
	b := encodeTorrent(t, map[string]interface{}{"announce": "http://tracker.example.com/"})
	_, err := New(bytes.NewReader(b))
	assert.Error(t, err)
}

func TestNewInfoInvalid(t *testing.T) {
	info := singleFileInfo()
	info["piece length"] = 0
	b, err := bencode.EncodeBytes(info)
	require.NoError(t, err)
	_, err = NewInfo(b)
	assert.Error(t, err)

	info = singleFileInfo()
	info["pieces"] = "too short"
	b, err = bencode.EncodeBytes(info)
	require.NoError(t, err)
	_, err = NewInfo(b)
	assert.Error(t, err)

	info = map[string]interface{}{
		"piece length": 16,
		"pieces":       string(bytes.Repeat([]byte{0xab}, 20)),
		"name":         "multi",
		"files": []map[string]interface{}{
			{"length": 10, "path": []string{"..", "evil"}},
		},
	}
	b, err = bencode.EncodeBytes(info)
	require.NoError(t, err)
	_, err = NewInfo(b)
	assert.Error(t, err)
}

func TestPadding(t *testing.T) {
	f := FileDict{Length: 6, Path: []string{"data"}, Attr: "p"}
	assert.True(t, f.Padding())

	f = FileDict{Length: 6, Path: []string{".pad", "6"}}
	assert.True(t, f.Padding())

	f = FileDict{Length: 6, Path: []string{"_____padding_file", "0"}}
	assert.True(t, f.Padding())

	f = FileDict{Length: 6, Path: []string{"data"}}
	assert.False(t, f.Padding())
}

func TestGetFiles(t *testing.T) {
	i := &Info{Name: "single", Length: 42}
	files := i.GetFiles()
	require.Len(t, files, 1)
	assert.Equal(t, []string{"single"}, files[0].Path)
	assert.Equal(t, int64(42), files[0].Length)
}
