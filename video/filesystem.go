package video

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pillash/mp4util"
	log "github.com/sirupsen/logrus"
)

const (
	ExtVideo = ".mp4"

	// FileTimeLayout defines the format of segment filenames, derived from
	// the ISO-8601 timestamp of the episode start.
	// See https://golang.org/src/time/format.go.
	FileTimeLayout = "2006-01-02T15:04:05.000-07:00"
)

// SegmentRecord identifies one recorded motion episode on disk. The path is
// fixed when recording starts and reused at stop time.
type SegmentRecord struct {
	Time time.Time
	Path string

	Size        int64
	DurationSec int
}

func (r *SegmentRecord) Identifier() string {
	return r.Time.Format(FileTimeLayout)
}

// FilesystemListener is notified whenever the set of records changes.
type FilesystemListener interface {
	FilesystemUpdated()
}

type FilesystemOptions struct {
	BasePath string

	// MaxSize limits total bytes of stored segments; oldest segments are
	// removed first. 0 disables the cap.
	MaxSize int64
}

// Filesystem owns the recording directory: it names new segments, indexes
// finalized ones, and garbage collects the oldest when over the size cap.
type Filesystem struct {
	Listeners []FilesystemListener

	basePath string

	l       sync.Mutex
	maxSize int64
	records map[string]*SegmentRecord
}

func NewFilesystem(opts FilesystemOptions) (*Filesystem, error) {
	if err := os.MkdirAll(opts.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	f := &Filesystem{
		basePath: opts.BasePath,
		maxSize:  opts.MaxSize,
		records:  make(map[string]*SegmentRecord),
	}
	if err := f.refresh(); err != nil {
		return nil, err
	}
	return f, nil
}

// NewRecord names a segment for an episode starting at t. The file does not
// exist yet; it is indexed once Commit is called after finalization.
func (f *Filesystem) NewRecord(t time.Time) *SegmentRecord {
	return &SegmentRecord{
		Time: t,
		Path: filepath.Join(f.basePath, t.Format(FileTimeLayout)+ExtVideo),
	}
}

// refresh rebuilds the index from the files present in the base path.
func (f *Filesystem) refresh() error {
	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		return err
	}

	m := make(map[string]*SegmentRecord)
	for _, e := range entries {
		b := e.Name()
		if !strings.HasSuffix(b, ExtVideo) {
			continue
		}
		t, err := time.Parse(FileTimeLayout, strings.TrimSuffix(b, ExtVideo))
		if err != nil {
			continue
		}
		r := &SegmentRecord{
			Time: t,
			Path: filepath.Join(f.basePath, b),
		}
		if info, err := e.Info(); err == nil {
			r.Size = info.Size()
		}
		if dur, err := probeDuration(r.Path); err == nil {
			r.DurationSec = dur
		}
		m[r.Identifier()] = r
	}

	f.l.Lock()
	f.records = m
	f.l.Unlock()
	return nil
}

// Commit indexes a finalized segment, probing its size and duration, and
// applies the size cap.
func (f *Filesystem) Commit(r *SegmentRecord) {
	if info, err := os.Stat(r.Path); err == nil {
		r.Size = info.Size()
	} else {
		log.Errorf("Failed to stat finalized segment %v: %v", r.Path, err)
	}
	if dur, err := probeDuration(r.Path); err == nil {
		r.DurationSec = dur
	} else {
		log.Warnf("Failed to probe duration of %v: %v", r.Path, err)
	}

	f.l.Lock()
	f.records[r.Identifier()] = r
	f.l.Unlock()

	f.gc()
	f.notifyListeners()
}

// GetRecords returns all known segments, newest first.
func (f *Filesystem) GetRecords() []*SegmentRecord {
	f.l.Lock()
	defer f.l.Unlock()
	records := make([]*SegmentRecord, 0, len(f.records))
	for _, r := range f.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})
	return records
}

func (f *Filesystem) GetRecordByID(id string) *SegmentRecord {
	f.l.Lock()
	defer f.l.Unlock()
	return f.records[id]
}

// TotalSize returns the summed size of all indexed segments.
func (f *Filesystem) TotalSize() int64 {
	f.l.Lock()
	defer f.l.Unlock()
	var sz int64
	for _, r := range f.records {
		sz += r.Size
	}
	return sz
}

// SetMaxSize adjusts the size cap and applies it immediately.
func (f *Filesystem) SetMaxSize(n int64) {
	f.l.Lock()
	f.maxSize = n
	f.l.Unlock()
	f.gc()
}

// Delete removes the segment file and drops it from the index.
func (f *Filesystem) Delete(r *SegmentRecord) error {
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	f.l.Lock()
	delete(f.records, r.Identifier())
	f.l.Unlock()
	f.notifyListeners()
	return nil
}

// gc removes oldest segments until the total size is under the cap.
func (f *Filesystem) gc() {
	f.l.Lock()
	max := f.maxSize
	f.l.Unlock()
	if max <= 0 {
		return
	}

	records := f.GetRecords()
	var sz int64
	for _, r := range records {
		sz += r.Size
	}
	// Oldest last in the newest-first ordering.
	for i := len(records) - 1; i >= 0 && sz > max; i-- {
		r := records[i]
		log.Infof("Removing %v to enforce size cap", r.Path)
		if err := f.Delete(r); err != nil {
			log.Errorf("Failed to remove %v: %v", r.Path, err)
			continue
		}
		sz -= r.Size
	}
}

// probeDuration reads the duration of a finalized segment. mp4util's atom
// scan does not terminate on malformed input (a zero atom length re-reads the
// same offset forever), and Commit runs on the detection loop, so the file is
// sanity-walked first and the probe skipped if the walk would not terminate.
func probeDuration(path string) (int, error) {
	if err := walkAtoms(path); err != nil {
		return 0, err
	}
	return mp4util.Duration(path)
}

// walkAtoms traverses the atom tree the duration probe visits (top level plus
// the children of moov) and rejects files where the traversal would not
// terminate, such as segments truncated by a killed encoder.
func walkAtoms(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return walkAtomRange(f, 0, info.Size())
}

func walkAtomRange(f *os.File, start, end int64) error {
	hdr := make([]byte, 8)
	for off := start; off < end; {
		if _, err := f.ReadAt(hdr, off); err != nil {
			return fmt.Errorf("short atom header at offset %d: %w", off, err)
		}
		length := int64(binary.BigEndian.Uint32(hdr[:4]))
		if length < 8 || off+length > end {
			return fmt.Errorf("malformed atom %q of length %d at offset %d", hdr[4:8], length, off)
		}
		if string(hdr[4:8]) == "moov" {
			if err := walkAtomRange(f, off+8, off+length); err != nil {
				return err
			}
		}
		off += length
	}
	return nil
}

func (f *Filesystem) notifyListeners() {
	for _, l := range f.Listeners {
		l.FilesystemUpdated()
	}
}
