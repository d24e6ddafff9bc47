package pagefile

import (
	"math"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeChannelReplacesColons(t *testing.T) {
	// Colons are replaced on Windows only.
	want := "N:channel:1"
	if runtime.GOOS == "windows" {
		want = "N_channel_1"
	}
	assert.Equal(t, want, NormalizeChannel("N:channel:1"))
}

func TestWindowFloorsPeriodProduct(t *testing.T) {
	// pageSize=100, rate=1000Hz -> period=1000us, window=100*1000=100000
	assert.EqualValues(t, 100000, Window(100, 1000))
}

func TestIndexRangeCoversInclusiveBoundaries(t *testing.T) {
	// window=1000: start exactly on a boundary is included; end
	// exactly on a boundary does not pull in the next page.
	first, lastExclusive := IndexRange(1000, 1999, 1000)
	assert.EqualValues(t, 1, first)
	assert.EqualValues(t, 2, lastExclusive)
}

func TestOffsetAtPageStart(t *testing.T) {
	p := Open(t.TempDir(), "pkg", "chan", 100, 0, 1000)
	off, err := p.Offset(0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
}

func TestOffsetAtPageEnd(t *testing.T) {
	p := Open(t.TempDir(), "pkg", "chan", 100, 0, 1000)
	off, err := p.Offset(999, 10)
	require.NoError(t, err)
	assert.Equal(t, 99, off)
}

func TestOffsetPastPageEndErrors(t *testing.T) {
	p := Open(t.TempDir(), "pkg", "chan", 100, 0, 1000)
	_, err := p.Offset(1000, 10)
	assert.Error(t, err)
}

func TestOffsetBeforePageStartClampsToZero(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 100, 1, 1000)
	off, err := p.Offset(500, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, off)
}

func TestWriteCreatesFileFromTemplate(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 4, 0, 1000)

	require.NoError(t, p.Write(0, []float64{1, 2, 3, 4}))
	assert.FileExists(t, filepath.Join(base, "templates", "4.bin"))
	assert.FileExists(t, p.Path())

	out := make([]float64, 4)
	require.NoError(t, p.Read(0, out))
	assert.Equal(t, []float64{1, 2, 3, 4}, out)
}

// TestExactPageWrite is the spec's concrete scenario: a write that
// fills exactly one page leaves every sample addressable by a
// subsequent read.
func TestExactPageWrite(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 3, 0, 3000)

	require.NoError(t, p.Write(0, []float64{1, 2, 3}))

	out := make([]float64, 3)
	require.NoError(t, p.Read(0, out))
	assert.Equal(t, []float64{1, 2, 3}, out)
}

// TestCrossPageWrite reproduces writing data that spans two pages: a
// caller walking data must split it at the page boundary and write
// each half to its own PageFile.
func TestCrossPageWrite(t *testing.T) {
	base := t.TempDir()
	page0 := Open(base, "pkg", "chan", 2, 0, 2000)
	page1 := Open(base, "pkg", "chan", 2, 1, 2000)

	require.NoError(t, page0.Write(1, []float64{10}))
	require.NoError(t, page1.Write(0, []float64{20}))

	out0 := make([]float64, 2)
	require.NoError(t, page0.Read(0, out0))
	assert.True(t, math.IsNaN(out0[0]), "untouched sample in page 0 stays NaN from the template")
	assert.Equal(t, float64(10), out0[1])

	out1 := make([]float64, 1)
	require.NoError(t, page1.Read(0, out1))
	assert.Equal(t, float64(20), out1[0])
}

func TestWriteExceedingPageSizeErrors(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 2, 0, 2000)
	err := p.Write(1, []float64{1, 2})
	assert.Error(t, err)
}

func TestReadMissingFileReturnsNotFound(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 2, 0, 2000)
	err := p.Read(0, make([]float64, 1))
	assert.Error(t, err)
}

func TestDeleteMissingFileIsNotAnError(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 2, 0, 2000)
	assert.NoError(t, p.Delete())
}

func TestDeleteRemovesFile(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 2, 0, 2000)
	require.NoError(t, p.Write(0, []float64{1, 2}))
	require.NoError(t, p.Delete())
	assert.NoFileExists(t, p.Path())
}

func TestKeyFromIDRoundTripsRecordID(t *testing.T) {
	id := "N:package:1/N:channel_1/10/3"
	k, err := KeyFromID("/base", id)
	require.NoError(t, err)
	assert.Equal(t, "N:package:1", k.Package)
	assert.Equal(t, "N:channel_1", k.Channel)
	assert.Equal(t, 10, k.PageSize)
	assert.EqualValues(t, 3, k.Index)
	assert.Equal(t, id, k.RecordID())
}

func TestKeyFromIDRejectsMalformed(t *testing.T) {
	_, err := KeyFromID("/base", "not-enough-parts")
	assert.Error(t, err)
}

func TestDeleteByIDRemovesFile(t *testing.T) {
	base := t.TempDir()
	p := Open(base, "pkg", "chan", 2, 0, 2000)
	require.NoError(t, p.Write(0, []float64{1, 2}))

	require.NoError(t, DeleteByID(base, p.key.RecordID()))
	assert.NoFileExists(t, p.Path())
}

func TestDeleteByIDMissingFileIsNotAnError(t *testing.T) {
	base := t.TempDir()
	assert.NoError(t, DeleteByID(base, "pkg/chan/2/0"))
}

func TestTemplateReusedAcrossPages(t *testing.T) {
	base := t.TempDir()
	p0 := Open(base, "pkg", "chan", 2, 0, 2000)
	p1 := Open(base, "pkg", "chan", 2, 5, 2000)

	require.NoError(t, p0.Write(0, []float64{1, 2}))
	require.NoError(t, p1.Write(0, []float64{3, 4}))

	// Both pages share the same template path; only one template file
	// should ever be created for a given page size.
	assert.Equal(t, filepath.Join(base, "templates", "2.bin"), TemplatePath(base, 2))
}
