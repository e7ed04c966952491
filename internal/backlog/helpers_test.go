package backlog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

var errInjected = errors.New("injected fault")

// faultStorage wraps OSStorage and fails selected operations on demand.
type faultStorage struct {
	OSStorage
	failWrite    atomic.Bool
	failSync     atomic.Bool
	failTruncate atomic.Bool
}

type faultFile struct {
	WriteFile
	s *faultStorage
}

func (f faultFile) Write(p []byte) (int, error) {
	if f.s.failWrite.Load() {
		return 0, errInjected
	}
	return f.WriteFile.Write(p)
}

func (f faultFile) Sync() error {
	if f.s.failSync.Load() {
		return errInjected
	}
	return f.WriteFile.Sync()
}

func (s *faultStorage) OpenAppend(name string) (WriteFile, error) {
	f, err := s.OSStorage.OpenAppend(name)
	if err != nil {
		return nil, err
	}
	return faultFile{WriteFile: f, s: s}, nil
}

func (s *faultStorage) Truncate(name string, size int64) error {
	if s.failTruncate.Load() {
		return errInjected
	}
	return s.OSStorage.Truncate(name, size)
}

func openBacklog(t *testing.T, dir string, opts Options) (*Backlog, LossReport) {
	t.Helper()
	b, report, err := Open(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b, report
}

func appendAll(t *testing.T, b *Backlog, payloads ...string) []uint64 {
	t.Helper()
	seqs := make([]uint64, 0, len(payloads))
	for _, p := range payloads {
		seq, err := b.Append(context.Background(), []byte(p))
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	return seqs
}

func collect(t *testing.T, b *Backlog, from uint64) []Frame {
	t.Helper()
	it, err := b.Iterate(from)
	require.NoError(t, err)
	defer it.Close()
	var out []Frame
	for it.Next() {
		out = append(out, it.Frame())
	}
	require.NoError(t, it.Err())
	return out
}

func payloads(frames []Frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = string(f.Payload)
	}
	return out
}

func segmentFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*"+segmentExt))
	require.NoError(t, err)
	sort.Strings(matches)
	return matches
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi.Size()
}

func flipByte(t *testing.T, path string, off int64) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	defer f.Close()
	var b [1]byte
	_, err = f.ReadAt(b[:], off)
	require.NoError(t, err)
	b[0] ^= 0x01
	_, err = f.WriteAt(b[:], off)
	require.NoError(t, err)
}

// fixed10 returns a 10-byte payload so frames are FrameSize(10) bytes each.
func fixed10(i int) string {
	return string([]byte{'p', byte('0' + i/100%10), byte('0' + i/10%10), byte('0' + i%10), '-', '-', '-', '-', '-', '-'})
}

// threePerSegment rotates after three 10-byte frames.
const threePerSegment = SegmentHeaderSize + 3*(FrameHeaderSize+10)
