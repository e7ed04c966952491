package backlogcmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rzbill/backlog/internal/backlog"
	"github.com/spf13/cobra"
)

// appendBatchSize bounds how many stdin lines share one durability barrier.
const appendBatchSize = 256

// newRecoverCommand constructs the `recover` subcommand.
func newRecoverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Run recovery and print what was discarded",
		RunE: func(cmd *cobra.Command, _ []string) error {
			asJSON, _ := cmd.Flags().GetBool("json")
			return withBacklog(cmd, func(s *session) error {
				if asJSON {
					return json.NewEncoder(s.out).Encode(lossReportJSON(s.report))
				}
				if s.report.Empty() {
					_, _ = fmt.Fprintln(s.out, "status: clean")
				} else {
					_, _ = fmt.Fprintf(s.out, "status: recovered, %d frames (%s) discarded\n",
						s.report.Frames(), humanize.IBytes(uint64(s.report.Bytes())))
					tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
					_, _ = fmt.Fprintln(tw, "SEGMENT\tFIRST SEQ\tFRAMES\tBYTES\tREASON\tACTION")
					for _, l := range s.report.Losses {
						action := "truncated"
						if l.Deleted {
							action = "deleted"
						}
						_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\t%s\n",
							l.SegmentID, l.FirstSeq, l.Frames, humanize.IBytes(uint64(l.Bytes())), l.Reason, action)
					}
					if err := tw.Flush(); err != nil {
						return err
					}
				}
				b := s.backlog()
				_, _ = fmt.Fprintf(s.out, "last_seq: %d\ncursor: %d\n", b.LastSequence(), b.Cursor())
				return nil
			})
		},
	}
	cmd.Flags().Bool("json", false, "Print the loss report as JSON")
	return cmd
}

// newAppendCommand constructs the `append` subcommand.
func newAppendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append payloads from --data or one per stdin line",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, _ := cmd.Flags().GetStringArray("data")
			return withBacklog(cmd, func(s *session) error {
				b := s.backlog()
				var first, last uint64
				record := func(seqs []uint64) {
					if len(seqs) == 0 {
						return
					}
					if first == 0 {
						first = seqs[0]
					}
					last = seqs[len(seqs)-1]
				}

				if len(data) > 0 {
					payloads := make([][]byte, len(data))
					for i, d := range data {
						payloads[i] = []byte(d)
					}
					seqs, err := b.AppendBatch(cmd.Context(), payloads)
					if err != nil {
						return err
					}
					record(seqs)
				} else {
					err := scanLines(cmd.InOrStdin(), b.MaxPayloadBytes(), func(batch [][]byte) error {
						seqs, err := b.AppendBatch(cmd.Context(), batch)
						record(seqs)
						return err
					})
					if err != nil {
						return err
					}
				}
				if err := b.Flush(); err != nil {
					return err
				}
				if first == 0 {
					_, _ = fmt.Fprintln(s.out, "appended: 0")
					return nil
				}
				_, _ = fmt.Fprintf(s.out, "appended: %d (seq %d..%d)\n", last-first+1, first, last)
				return nil
			})
		},
	}
	cmd.Flags().StringArray("data", nil, "Payload to append (repeatable)")
	return cmd
}

// scanLines feeds r to fn in batches of lines without their newline.
func scanLines(r io.Reader, maxLine int, fn func([][]byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine+1)
	batch := make([][]byte, 0, appendBatchSize)
	for sc.Scan() {
		batch = append(batch, append([]byte(nil), sc.Bytes()...))
		if len(batch) == appendBatchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

// newDumpCommand constructs the `dump` subcommand.
func newDumpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print durable frames as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, _ := cmd.Flags().GetUint64("from")
			limit, _ := cmd.Flags().GetInt("limit")
			unacked, _ := cmd.Flags().GetBool("unacked")
			return withBacklog(cmd, func(s *session) error {
				b := s.backlog()
				if unacked && from <= b.Cursor() {
					from = b.Cursor() + 1
				}
				it, err := b.Iterate(from)
				if err != nil {
					return err
				}
				defer it.Close()
				enc := json.NewEncoder(s.out)
				n := 0
				for (limit <= 0 || n < limit) && it.Next() {
					f := it.Frame()
					if err := enc.Encode(decodedFrame(f.Seq, f.Payload)); err != nil {
						return err
					}
					n++
				}
				return it.Err()
			})
		},
	}
	cmd.Flags().Uint64("from", 1, "First sequence to print")
	cmd.Flags().Int("limit", 0, "Stop after N frames (0 = all)")
	cmd.Flags().Bool("unacked", false, "Start after the cursor")
	return cmd
}

// newAckCommand constructs the `ack` subcommand.
func newAckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ack <seq>",
		Short: "Advance the consumption cursor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid sequence %q: %w", args[0], err)
			}
			return withBacklog(cmd, func(s *session) error {
				if err := s.backlog().Acknowledge(seq); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(s.out, "cursor:", s.backlog().Cursor())
				return nil
			})
		},
	}
}

// newTrimCommand constructs the `trim` subcommand.
func newTrimCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "trim",
		Short: "Delete sealed segments that are fully acknowledged",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBacklog(cmd, func(s *session) error {
				res, err := s.backlog().Trim(cmd.Context())
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(s.out, "trimmed: %d segments, %s (up to seq %d)\n",
					res.Segments, humanize.IBytes(uint64(res.Bytes)), res.UpToSeq)
				return nil
			})
		},
	}
}

// newStatsCommand constructs the `stats` subcommand.
func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show segments, sizes and the cursor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			verbose, _ := cmd.Flags().GetBool("segments")
			return withBacklog(cmd, func(s *session) error {
				b := s.backlog()
				segs := b.Segments()
				var total int64
				var frames int64
				for _, si := range segs {
					total += si.Size
					frames += si.Frames
				}
				last, cursor := b.LastSequence(), b.Cursor()
				var pending uint64
				if last > cursor {
					pending = last - cursor
				}
				_, _ = fmt.Fprintf(s.out, "dir: %s\n", b.Dir())
				_, _ = fmt.Fprintf(s.out, "segments: %d\n", len(segs))
				_, _ = fmt.Fprintf(s.out, "frames: %s\n", humanize.Comma(frames))
				_, _ = fmt.Fprintf(s.out, "size: %s\n", humanize.IBytes(uint64(total)))
				_, _ = fmt.Fprintf(s.out, "last_seq: %d\n", last)
				_, _ = fmt.Fprintf(s.out, "cursor: %d\n", cursor)
				_, _ = fmt.Fprintf(s.out, "unacked: %s\n", humanize.Comma(int64(pending)))
				if !verbose {
					return nil
				}
				tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "ID\tBASE\tLAST\tFRAMES\tSIZE\tSTATE")
				for _, si := range segs {
					state := "active"
					if si.Sealed {
						state = "sealed"
					}
					_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%s\t%s\n",
						si.ID, si.BaseSeq, si.LastSeq, si.Frames, humanize.IBytes(uint64(si.Size)), state)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().Bool("segments", false, "List every segment")
	return cmd
}

func lossReportJSON(r backlog.LossReport) map[string]any {
	losses := make([]map[string]any, 0, len(r.Losses))
	for _, l := range r.Losses {
		losses = append(losses, map[string]any{
			"segment":   l.SegmentID,
			"first_seq": l.FirstSeq,
			"frames":    l.Frames,
			"start":     l.Start,
			"end":       l.End,
			"reason":    l.Reason.String(),
			"deleted":   l.Deleted,
		})
	}
	return map[string]any{
		"frames": r.Frames(),
		"bytes":  r.Bytes(),
		"losses": losses,
	}
}
