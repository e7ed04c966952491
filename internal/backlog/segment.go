package backlog

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Segment header layout (big-endian):
//
//	magic "BKSG"(4) | version(1) | reserved(3) | baseSeq(8) | crc32c(4)

const (
	// SegmentHeaderSize is the size of the header at the start of every segment file.
	SegmentHeaderSize = 20

	segmentVersion byte = 1
	segmentExt          = ".seg"
	tmpExt              = ".tmp"
	cursorFileName      = "cursor"
	lockFileName        = "LOCK"
)

var segmentMagic = [4]byte{'B', 'K', 'S', 'G'}

func segmentFileName(id uint64) string { return fmt.Sprintf("%020d%s", id, segmentExt) }

func parseSegmentFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, segmentExt) {
		return 0, false
	}
	digits := strings.TrimSuffix(name, segmentExt)
	if len(digits) != 20 {
		return 0, false
	}
	id, err := strconv.ParseUint(digits, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func encodeSegmentHeader(base uint64) []byte {
	h := make([]byte, SegmentHeaderSize)
	copy(h[0:4], segmentMagic[:])
	h[4] = segmentVersion
	binary.BigEndian.PutUint64(h[8:16], base)
	binary.BigEndian.PutUint32(h[16:20], crc32.Checksum(h[:16], castagnoli))
	return h
}

func decodeSegmentHeader(h []byte) (uint64, error) {
	if len(h) < SegmentHeaderSize {
		return 0, fmt.Errorf("segment header: %w", ErrShortFrame)
	}
	if [4]byte(h[0:4]) != segmentMagic {
		return 0, fmt.Errorf("%w: bad segment magic %q", ErrCorruptFrame, h[0:4])
	}
	if h[4] != segmentVersion {
		return 0, fmt.Errorf("%w: unsupported segment version %d", ErrCorruptFrame, h[4])
	}
	want := binary.BigEndian.Uint32(h[16:20])
	if got := crc32.Checksum(h[:16], castagnoli); got != want {
		return 0, fmt.Errorf("%w: segment header checksum mismatch", ErrCorruptFrame)
	}
	return binary.BigEndian.Uint64(h[8:16]), nil
}

// SegmentInfo describes one segment file. For an empty segment LastSeq is BaseSeq-1.
type SegmentInfo struct {
	ID      uint64
	BaseSeq uint64
	LastSeq uint64
	Frames  int64
	// Size is the durable byte size including the segment header.
	Size   int64
	Sealed bool
}

// Empty reports whether the segment holds no frames.
func (s SegmentInfo) Empty() bool { return s.Frames == 0 }

// segment is the in-memory state of one segment. Fields other than id, path
// and base are guarded by segmentSet.mu.
type segment struct {
	id     uint64
	path   string
	base   uint64
	last   uint64
	frames int64
	size   int64
}

func newSegment(dir string, id, base uint64) *segment {
	return &segment{
		id:   id,
		path: filepath.Join(dir, segmentFileName(id)),
		base: base,
		last: base - 1,
		size: SegmentHeaderSize,
	}
}

// segmentSet is the ordered list of live segments shared by the writer,
// iterators and trim. The last entry is the active segment.
type segmentSet struct {
	mu       sync.RWMutex
	segs     []*segment
	notifyCh chan struct{}
	// shut is set once the backlog closes; notifyCh is then closed for good.
	shut bool
}

func newSegmentSet(segs []*segment) *segmentSet {
	return &segmentSet{segs: segs, notifyCh: make(chan struct{})}
}

func (s *segmentSet) infoLocked(i int) SegmentInfo {
	seg := s.segs[i]
	return SegmentInfo{
		ID:      seg.id,
		BaseSeq: seg.base,
		LastSeq: seg.last,
		Frames:  seg.frames,
		Size:    seg.size,
		Sealed:  i < len(s.segs)-1,
	}
}

// snapshot returns the current segment infos, oldest first.
func (s *segmentSet) snapshot() []SegmentInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SegmentInfo, len(s.segs))
	for i := range s.segs {
		out[i] = s.infoLocked(i)
	}
	return out
}

func (s *segmentSet) active() *segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segs[len(s.segs)-1]
}

// lastSeq returns the last durable sequence number of the whole backlog.
func (s *segmentSet) lastSeq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segs[len(s.segs)-1].last
}

// totalBytes returns the durable size of all segments.
func (s *segmentSet) totalBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, seg := range s.segs {
		n += seg.size
	}
	return n
}

// locate returns the first segment that holds a frame with sequence >= seq.
func (s *segmentSet) locate(seq uint64) (SegmentInfo, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := sort.Search(len(s.segs), func(i int) bool { return s.segs[i].last >= seq })
	for ; i < len(s.segs); i++ {
		if s.segs[i].frames > 0 {
			return s.infoLocked(i), s.segs[i].path, true
		}
	}
	return SegmentInfo{}, "", false
}

// lookup returns the current info of segment id.
func (s *segmentSet) lookup(id uint64) (SegmentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i, seg := range s.segs {
		if seg.id == id {
			return s.infoLocked(i), true
		}
	}
	return SegmentInfo{}, false
}

// publish records newly durable bytes of seg and wakes waiters.
func (s *segmentSet) publish(seg *segment, size int64, last uint64, frames int64) {
	s.mu.Lock()
	seg.size = size
	seg.last = last
	seg.frames = frames
	if !s.shut {
		close(s.notifyCh)
		s.notifyCh = make(chan struct{})
	}
	s.mu.Unlock()
}

// shutdown wakes every waiter and makes later waits return immediately.
func (s *segmentSet) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shut {
		return
	}
	s.shut = true
	close(s.notifyCh)
}

func (s *segmentSet) add(seg *segment) {
	s.mu.Lock()
	s.segs = append(s.segs, seg)
	s.mu.Unlock()
}

// removeFront drops the n oldest segments and returns them.
func (s *segmentSet) removeFront(n int) []*segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.segs)-1 {
		n = len(s.segs) - 1
	}
	out := append([]*segment(nil), s.segs[:n]...)
	s.segs = append(s.segs[:0:0], s.segs[n:]...)
	return out
}

// waitCh returns the channel closed by the next publish and whether the
// set is still live.
func (s *segmentSet) waitCh() (chan struct{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notifyCh, !s.shut
}

func (s *segmentSet) isShut() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shut
}
