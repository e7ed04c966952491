// Package backlog implements a durable, crash-tolerant append-only log kept in
// a single local directory.
//
// # Overview
//
// Frames are appended to numbered segment files and made durable according to
// a FlushPolicy. A consumer iterates frames in sequence order and acknowledges
// progress; fully acknowledged sealed segments are trimmed. Opening a backlog
// always runs recovery first and returns a LossReport describing every byte
// range that had to be discarded.
//
// On-disk layout:
//   - {dir}/{id:020d}.seg  segment: header | frame...
//   - {dir}/cursor         two checksummed cursor slots
//   - {dir}/LOCK           advisory lock held while open
//
// Segment header: "BKSG" | version(1) | reserved(3) | baseSeq(8) | crc32c(4).
// Frame: magic 0xB7 | version(1) | seq(8) | len(4) | crc32c(4) | payload.
// The frame checksum is CRC-32C over the first 14 header bytes and the payload.
//
// API surface
//
//	b, report, err := backlog.Open(dir, backlog.Options{})
//	if !report.Empty() {
//	    // alert upstream: report.Frames() frames lost
//	}
//	seq, _ := b.Append(ctx, []byte("reading"))
//
//	it, _ := b.Iterate(b.Cursor() + 1)
//	for it.Next() {
//	    f := it.Frame()
//	    _ = send(f.Payload)
//	    _ = b.Acknowledge(f.Seq)
//	}
//	_ = it.Close()
//
// # Recovery
//
// Recovery walks segments oldest to newest. An incomplete or zero-filled tail
// of the active segment is truncated as a torn write. A checksum failure, a
// sequence discontinuity or a broken segment header is a hard cutoff: the
// segment is truncated at the last valid frame and every later segment is
// deleted. Every discarded region appears in the LossReport.
package backlog
