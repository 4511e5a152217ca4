package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStem(t *testing.T) {
	assert.Equal(t, "/tmp/w1/0/page-3", Stem("/tmp/w1/0/page-3.png"))
	assert.Equal(t, "/tmp/w1/0/page.v2", Stem("/tmp/w1/0/page.v2.csv"))
	assert.Equal(t, "noext", Stem("noext"))
}

func TestHasExt(t *testing.T) {
	exts := []string{".png", ".jpg"}
	assert.True(t, HasExt("a.PNG", exts))
	assert.True(t, HasExt("dir/a.jpg", exts))
	assert.False(t, HasExt("a.csv", exts))
	assert.False(t, HasExt("png", exts))
}

func TestNormalizeExts(t *testing.T) {
	assert.Equal(t, []string{".png", ".csv"}, NormalizeExts([]string{"PNG", " .csv ", ""}))
}

func TestCaptureTime(t *testing.T) {
	ts, err := ParseCaptureTime("2020-05-20 01:00:00")
	require.NoError(t, err)
	assert.Equal(t, "2020-05-20 01:00:00", FormatCaptureTime(ts))

	_, err = ParseCaptureTime("2020/05/20 01:00:00")
	assert.Error(t, err)

	assert.Equal(t, "2021-01-02 03:04:05", FormatCaptureTime(time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)))
}
