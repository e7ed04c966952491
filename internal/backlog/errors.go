package backlog

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by operations on a closed backlog.
	ErrClosed = errors.New("backlog: closed")

	// ErrWriteFailure is returned when storage rejects a write or fsync.
	// The sequence number of the failed append is not consumed.
	ErrWriteFailure = errors.New("backlog: write failure")

	// ErrOpenFailed is returned when the backlog cannot be opened at all.
	ErrOpenFailed = errors.New("backlog: open failed")

	// ErrInconsistent is returned once a corruption boundary shows up after
	// recovery already verified the log. The instance stays unusable.
	ErrInconsistent = errors.New("backlog: post-recovery inconsistency")

	// ErrLocked is returned when another owner holds the directory lock.
	ErrLocked = errors.New("backlog: directory is locked by another owner")

	// ErrPayloadTooLarge is returned for payloads above Options.MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("backlog: payload too large")

	// ErrAckOutOfRange is returned when acknowledging a sequence that is not durable yet.
	ErrAckOutOfRange = errors.New("backlog: acknowledge beyond last durable sequence")

	// ErrShortFrame signals an incomplete frame at the end of the available bytes.
	ErrShortFrame = errors.New("backlog: incomplete frame")

	// ErrCorruptFrame signals a structurally complete frame that fails validation.
	ErrCorruptFrame = errors.New("backlog: corrupt frame")
)

// BoundaryReason classifies why a scan stopped before the end of a segment.
type BoundaryReason int

const (
	// ReasonCorruption is a checksum, magic, version or length failure.
	ReasonCorruption BoundaryReason = iota + 1
	// ReasonTornTail is an incomplete frame where one is not allowed, or a
	// cut-short tail of the active segment.
	ReasonTornTail
	// ReasonSequenceGap is a valid frame whose sequence does not follow its predecessor.
	ReasonSequenceGap
	// ReasonBadSegmentHeader is an unreadable or invalid segment header.
	ReasonBadSegmentHeader
	// ReasonRetention marks data evicted by the max-bytes retention policy.
	ReasonRetention
)

func (r BoundaryReason) String() string {
	switch r {
	case ReasonCorruption:
		return "corruption"
	case ReasonTornTail:
		return "torn-tail"
	case ReasonSequenceGap:
		return "sequence-gap"
	case ReasonBadSegmentHeader:
		return "bad-segment-header"
	case ReasonRetention:
		return "retention"
	default:
		return "unknown"
	}
}

// CorruptionBoundary is the first position in a scan where the log stops
// being verifiable. Data before Offset in segment SegmentID is valid.
type CorruptionBoundary struct {
	SegmentID uint64
	Offset    int64
	// Seq is the sequence number expected at Offset.
	Seq    uint64
	Reason BoundaryReason
	Cause  error
}

func (c *CorruptionBoundary) Error() string {
	msg := fmt.Sprintf("backlog: %s in segment %d at offset %d (seq %d)", c.Reason, c.SegmentID, c.Offset, c.Seq)
	if c.Cause != nil {
		msg += ": " + c.Cause.Error()
	}
	return msg
}

func (c *CorruptionBoundary) Unwrap() error { return c.Cause }
