package video

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingListener struct {
	updates int
}

func (l *countingListener) FilesystemUpdated() {
	l.updates++
}

func writeSegment(t *testing.T, fs *Filesystem, at time.Time, size int) *SegmentRecord {
	t.Helper()
	r := fs.NewRecord(at)
	require.NoError(t, os.WriteFile(r.Path, make([]byte, size), 0644))
	fs.Commit(r)
	return r
}

func TestNewRecordPathNaming(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(FilesystemOptions{BasePath: dir})
	require.NoError(t, err)

	at := time.Date(2024, 5, 17, 10, 30, 0, 0, time.UTC)
	r := fs.NewRecord(at)

	assert.Equal(t, dir, filepath.Dir(r.Path))
	assert.True(t, strings.HasSuffix(r.Path, ExtVideo))

	base := strings.TrimSuffix(filepath.Base(r.Path), ExtVideo)
	parsed, err := time.Parse(FileTimeLayout, base)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(at))

	// Path derivation is deterministic for the episode start time.
	assert.Equal(t, r.Path, fs.NewRecord(at).Path)
}

func TestCommitIndexesSegment(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)

	r := writeSegment(t, fs, time.Now(), 1024)

	assert.Equal(t, int64(1024), r.Size)
	assert.Equal(t, r, fs.GetRecordByID(r.Identifier()))
	assert.Equal(t, int64(1024), fs.TotalSize())
}

func TestCommitMalformedSegmentReturns(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)

	// A zero-filled file carries a zero atom length; an unguarded duration
	// probe would re-read the same offset forever.
	r := fs.NewRecord(time.Now())
	require.NoError(t, os.WriteFile(r.Path, make([]byte, 1024), 0644))

	done := make(chan struct{})
	go func() {
		fs.Commit(r)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("commit stalled probing a malformed segment")
	}

	assert.Equal(t, 0, r.DurationSec)
	assert.Equal(t, r, fs.GetRecordByID(r.Identifier()))
}

func TestProbeDurationRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0644))
		return p
	}

	_, err := probeDuration(write("zeros.mp4", make([]byte, 64)))
	assert.Error(t, err, "zero atom length")

	_, err = probeDuration(write("short.mp4", []byte{0, 0}))
	assert.Error(t, err, "truncated atom header")

	// An atom claiming more bytes than the file holds means the encoder was
	// killed mid-write.
	_, err = probeDuration(write("trunc.mp4", []byte{0, 0, 1, 0, 'f', 't', 'y', 'p'}))
	assert.Error(t, err)
}

func TestWalkAtomsAcceptsWellFormedTree(t *testing.T) {
	// ftyp plus a moov holding one child atom.
	var b []byte
	b = append(b, 0, 0, 0, 16)
	b = append(b, []byte("ftypisom")...)
	b = append(b, 0, 0, 0, 0)
	b = append(b, 0, 0, 0, 16)
	b = append(b, []byte("moov")...)
	b = append(b, 0, 0, 0, 8)
	b = append(b, []byte("mvhd")...)

	p := filepath.Join(t.TempDir(), "ok.mp4")
	require.NoError(t, os.WriteFile(p, b, 0644))
	assert.NoError(t, walkAtoms(p))
}

func TestRefreshScansExistingSegments(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFilesystem(FilesystemOptions{BasePath: dir})
	require.NoError(t, err)

	at := time.Now().Truncate(time.Millisecond)
	writeSegment(t, fs, at, 10)
	// Stray files are ignored by the scan.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	reopened, err := NewFilesystem(FilesystemOptions{BasePath: dir})
	require.NoError(t, err)
	records := reopened.GetRecords()
	require.Len(t, records, 1)
	assert.True(t, records[0].Time.Equal(at))
}

func TestGetRecordsNewestFirst(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)

	t0 := time.Now()
	writeSegment(t, fs, t0.Add(-2*time.Minute), 1)
	writeSegment(t, fs, t0, 1)
	writeSegment(t, fs, t0.Add(-1*time.Minute), 1)

	records := fs.GetRecords()
	require.Len(t, records, 3)
	assert.True(t, records[0].Time.After(records[1].Time))
	assert.True(t, records[1].Time.After(records[2].Time))
}

func TestDeleteRemovesFileAndIndex(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)

	r := writeSegment(t, fs, time.Now(), 10)
	require.NoError(t, fs.Delete(r))

	assert.Nil(t, fs.GetRecordByID(r.Identifier()))
	_, statErr := os.Stat(r.Path)
	assert.True(t, os.IsNotExist(statErr))

	// Deleting an already-deleted record stays quiet.
	assert.NoError(t, fs.Delete(r))
}

func TestSizeCapRemovesOldestFirst(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir(), MaxSize: 250})
	require.NoError(t, err)

	t0 := time.Now()
	oldest := writeSegment(t, fs, t0.Add(-2*time.Minute), 100)
	middle := writeSegment(t, fs, t0.Add(-1*time.Minute), 100)
	newest := writeSegment(t, fs, t0, 100)

	assert.Nil(t, fs.GetRecordByID(oldest.Identifier()))
	assert.NotNil(t, fs.GetRecordByID(middle.Identifier()))
	assert.NotNil(t, fs.GetRecordByID(newest.Identifier()))
	assert.LessOrEqual(t, fs.TotalSize(), int64(250))
}

func TestSetMaxSizeAppliesImmediately(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)

	t0 := time.Now()
	writeSegment(t, fs, t0.Add(-time.Minute), 100)
	writeSegment(t, fs, t0, 100)
	require.Len(t, fs.GetRecords(), 2)

	fs.SetMaxSize(100)
	assert.Len(t, fs.GetRecords(), 1)
}

func TestListenersNotifiedOnChanges(t *testing.T) {
	fs, err := NewFilesystem(FilesystemOptions{BasePath: t.TempDir()})
	require.NoError(t, err)
	l := &countingListener{}
	fs.Listeners = append(fs.Listeners, l)

	r := writeSegment(t, fs, time.Now(), 10)
	assert.Equal(t, 1, l.updates)

	require.NoError(t, fs.Delete(r))
	assert.Equal(t, 2, l.updates)
}
