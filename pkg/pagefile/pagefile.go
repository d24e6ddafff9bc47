// Package pagefile implements the on-disk page addressing scheme for
// the timeseries cache: fixed-size, content-addressed files of
// little-endian float64 samples, laid out under
// <base>/<package>/<channel>/<page_size>/<index>.bin and seeded from a
// per-size NaN-filled template the first time a size is used.
//
// This is new code: the teacher has no equivalent of a fixed-size
// windowed sample file, but PageCreator's "global mutex, double-check
// existence, copy template" pattern is grounded on the teacher's
// pkg/store/content/local chunk-store layout (content-addressed paths
// under a base directory, lazily created parent directories).
package pagefile

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/pennsieve/agent/internal/agenterrors"
)

// sampleBytes is the on-disk width of one sample: an IEEE-754
// float64, little-endian (byte order resolved as an Open Question —
// see DESIGN.md).
const sampleBytes = 8

// NormalizeChannel maps a channel id to its on-disk/comparison form.
// Windows forbids ':' in path components, so there every ':' becomes
// '_'; on other platforms the id is returned unchanged. The
// unnormalized id is retained elsewhere for display.
func NormalizeChannel(id string) string {
	if runtime.GOOS != "windows" {
		return id
	}
	return strings.ReplaceAll(id, ":", "_")
}

// Key addresses a single PageFile.
type Key struct {
	Base      string
	Package   string
	Channel   string // already normalized
	PageSize  int
	Index     int64
}

// Path returns the on-disk location of the page file this key
// addresses.
func (k Key) Path() string {
	return filepath.Join(k.Base, k.Package, k.Channel, strconv.Itoa(k.PageSize), strconv.FormatInt(k.Index, 10)+".bin")
}

// RecordID returns the page_record.id this key corresponds to: the
// same "package/channel/page_size/index" string the store and
// cacheengine use as their shared key, independent of Base.
func (k Key) RecordID() string {
	return k.Package + "/" + k.Channel + "/" + strconv.Itoa(k.PageSize) + "/" + strconv.FormatInt(k.Index, 10)
}

// KeyFromID parses a page_record.id back into its component parts,
// so a worker holding only the id (e.g. the collector evicting aged
// rows) can locate the backing file under a given base directory.
func KeyFromID(base, id string) (Key, error) {
	parts := strings.Split(id, "/")
	if len(parts) != 4 {
		return Key{}, agenterrors.New(agenterrors.CodeInvalidArgument, "malformed page id: "+id)
	}
	pageSize, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, agenterrors.Wrap(agenterrors.CodeInvalidArgument, "malformed page id size", err)
	}
	index, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return Key{}, agenterrors.Wrap(agenterrors.CodeInvalidArgument, "malformed page id index", err)
	}
	return Key{Base: base, Package: parts[0], Channel: parts[1], PageSize: pageSize, Index: index}, nil
}

// TemplatePath returns the one-time seed file for a given page size.
func TemplatePath(base string, pageSize int) string {
	return filepath.Join(base, "templates", strconv.Itoa(pageSize)+".bin")
}

// Window returns the page's time-window width in microseconds:
// floor(page_size * period), where period = 1e6/rate_hz.
func Window(pageSize int, rateHz float64) int64 {
	period := 1e6 / rateHz
	return int64(math.Floor(float64(pageSize) * period))
}

// floorDiv performs integer floor division. Both operands are always
// non-negative microsecond offsets in this package, so truncating
// division already equals floor division.
func floorDiv(a, b int64) int64 {
	return a / b
}

// ceilDiv performs integer ceiling division for positive b.
func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// IndexRange returns the half-open page-index range
// [floor(start/w), ceil(end/w)) covering [startUs, endUs] at window w.
// A start exactly on a page boundary includes that page; an end
// exactly on a page boundary does not pull in the next one.
func IndexRange(startUs, endUs, window int64) (first, lastExclusive int64) {
	return floorDiv(startUs, window), ceilDiv(endUs, window)
}

// Bounds returns the inclusive [start, end] microsecond window for
// page index at the given window width.
func Bounds(index, window int64) (start, end int64) {
	start = index * window
	return start, start + window - 1
}

// PageFile is a single fixed-size window of samples on disk.
type PageFile struct {
	key        Key
	start, end int64
}

// Open addresses the PageFile for (base, pkg, channel, pageSize,
// index) at the given window width. It does not touch the
// filesystem; the backing file is created lazily on first Write via
// PageCreator.
func Open(base, pkg, channel string, pageSize int, index, window int64) *PageFile {
	start, end := Bounds(index, window)
	return &PageFile{
		key:   Key{Base: base, Package: pkg, Channel: NormalizeChannel(channel), PageSize: pageSize, Index: index},
		start: start,
		end:   end,
	}
}

// Path returns the page's on-disk path.
func (p *PageFile) Path() string {
	return p.key.Path()
}

// Offset computes the sample offset within the page for windowStart,
// given the stream's sample period in microseconds. A windowStart
// before the page's start clamps to offset 0; one after the page's
// end is out of range.
func (p *PageFile) Offset(windowStart, period int64) (int, error) {
	if windowStart < p.start {
		return 0, nil
	}
	if windowStart > p.end {
		return 0, agenterrors.New(agenterrors.CodeInvalidArgument, "offset out of page range")
	}
	return int(floorDiv(windowStart-p.start, period)), nil
}

// Write stores data starting at offset, creating the backing file
// from the size's template if it does not exist yet.
func (p *PageFile) Write(offset int, data []float64) error {
	if offset+len(data) > p.key.PageSize {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "write exceeds page size")
	}
	if err := ensurePageFile(p.key.Base, p.key.PageSize, p.Path()); err != nil {
		return err
	}

	f, err := os.OpenFile(p.Path(), os.O_WRONLY, 0o644)
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "opening page file for write", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(int64(offset)*sampleBytes, io.SeekStart); err != nil {
			return agenterrors.Wrap(agenterrors.CodeIO, "seeking page file", err)
		}
	}

	buf := make([]byte, len(data)*sampleBytes)
	for i, v := range data {
		binary.LittleEndian.PutUint64(buf[i*sampleBytes:], math.Float64bits(v))
	}
	if _, err := f.Write(buf); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "writing page file", err)
	}
	return nil
}

// Read fills out with len(out) samples starting at offset,
// returning an error if that range doesn't exist yet (the file has
// never been created).
func (p *PageFile) Read(offset int, out []float64) error {
	if offset+len(out) > p.key.PageSize {
		return agenterrors.New(agenterrors.CodeInvalidArgument, "read exceeds page size")
	}

	f, err := os.Open(p.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return agenterrors.New(agenterrors.CodeNotFound, "page file does not exist")
		}
		return agenterrors.Wrap(agenterrors.CodeIO, "opening page file for read", err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(int64(offset)*sampleBytes, io.SeekStart); err != nil {
			return agenterrors.Wrap(agenterrors.CodeIO, "seeking page file", err)
		}
	}

	buf := make([]byte, len(out)*sampleBytes)
	if _, err := io.ReadFull(f, buf); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "reading page file", err)
	}
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*sampleBytes:]))
	}
	return nil
}

// Delete removes the page's backing file. A missing file is not an
// error: the caller may delete a page whose file was never written
// (pure NaN pages never touch disk).
func (p *PageFile) Delete() error {
	if err := os.Remove(p.Path()); err != nil && !os.IsNotExist(err) {
		return agenterrors.Wrap(agenterrors.CodeIO, "deleting page file", err)
	}
	return nil
}

// DeleteByID removes the backing file for a page_record.id under
// base, if one exists. Used by the collector, which only has the id
// from a store row and never reconstructs the page's time window.
func DeleteByID(base, id string) error {
	k, err := KeyFromID(base, id)
	if err != nil {
		return err
	}
	if err := os.Remove(k.Path()); err != nil && !os.IsNotExist(err) {
		return agenterrors.Wrap(agenterrors.CodeIO, "deleting page file by id", err)
	}
	return nil
}

var pageCreatorMu sync.Mutex

// ensurePageFile creates path from the page_size template if it does
// not already exist, under a single process-wide mutex so concurrent
// writers to the same never-yet-created page never race on the copy.
func ensurePageFile(base string, pageSize int, path string) error {
	pageCreatorMu.Lock()
	defer pageCreatorMu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return agenterrors.Wrap(agenterrors.CodeIO, "statting page file", err)
	}

	templatePath := TemplatePath(base, pageSize)
	if err := ensureTemplate(templatePath, pageSize); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "creating page directory", err)
	}
	if err := copyFile(templatePath, path); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "copying page template", err)
	}
	return nil
}

// ensureTemplate creates the NaN-filled seed file for pageSize if it
// doesn't already exist. Must be called with pageCreatorMu held.
func ensureTemplate(templatePath string, pageSize int) error {
	if _, err := os.Stat(templatePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return agenterrors.Wrap(agenterrors.CodeIO, "statting page template", err)
	}

	if err := os.MkdirAll(filepath.Dir(templatePath), 0o755); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "creating template directory", err)
	}

	f, err := os.Create(templatePath)
	if err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "creating page template", err)
	}
	defer f.Close()

	buf := make([]byte, pageSize*sampleBytes)
	nanBits := math.Float64bits(math.NaN())
	for i := 0; i < pageSize; i++ {
		binary.LittleEndian.PutUint64(buf[i*sampleBytes:], nanBits)
	}
	if _, err := f.Write(buf); err != nil {
		return agenterrors.Wrap(agenterrors.CodeIO, "writing page template", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
