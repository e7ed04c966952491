package backlog

import (
	"errors"
	"testing"
)

func TestSegmentFileName(t *testing.T) {
	name := segmentFileName(12)
	if name != "00000000000000000012.seg" {
		t.Fatalf("name=%q", name)
	}
	id, ok := parseSegmentFileName(name)
	if !ok || id != 12 {
		t.Fatalf("parse: id=%d ok=%v", id, ok)
	}
	for _, bad := range []string{"12.seg", "00000000000000000000.seg", "00000000000000000012.seg.tmp", "cursor", "LOCK", "0000000000000000001x.seg"} {
		if _, ok := parseSegmentFileName(bad); ok {
			t.Fatalf("%q parsed as a segment", bad)
		}
	}
}

func TestSegmentHeader(t *testing.T) {
	h := encodeSegmentHeader(1234)
	if len(h) != SegmentHeaderSize {
		t.Fatalf("header size %d", len(h))
	}
	base, err := decodeSegmentHeader(h)
	if err != nil || base != 1234 {
		t.Fatalf("decode: base=%d err=%v", base, err)
	}
	h[9] ^= 0xff
	if _, err := decodeSegmentHeader(h); !errors.Is(err, ErrCorruptFrame) {
		t.Fatalf("want ErrCorruptFrame, got %v", err)
	}
	if _, err := decodeSegmentHeader(h[:10]); !errors.Is(err, ErrShortFrame) {
		t.Fatalf("want ErrShortFrame, got %v", err)
	}
}

func TestSegmentSetLocate(t *testing.T) {
	s1 := newSegment("d", 1, 1)
	s1.last, s1.frames = 3, 3
	s2 := newSegment("d", 2, 4) // empty, sealed
	s3 := newSegment("d", 3, 4)
	s3.last, s3.frames = 5, 2
	set := newSegmentSet([]*segment{s1, s2, s3})

	info, _, ok := set.locate(2)
	if !ok || info.ID != 1 {
		t.Fatalf("locate(2)=%+v ok=%v", info, ok)
	}
	info, _, ok = set.locate(4)
	if !ok || info.ID != 3 || info.Sealed {
		t.Fatalf("locate(4)=%+v ok=%v", info, ok)
	}
	if _, _, ok := set.locate(6); ok {
		t.Fatalf("locate past end should fail")
	}

	removed := set.removeFront(5)
	if len(removed) != 2 || len(set.snapshot()) != 1 {
		t.Fatalf("removeFront must keep the active segment: removed=%d left=%d", len(removed), len(set.snapshot()))
	}
}
