package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/KevoDB/workstats/pkg/recorder"
)

// Command completer for readline
var completer = readline.NewPrefixCompleter(
	readline.PcItem("batch"),
	readline.PcItem(".stats"),
	readline.PcItem(".help"),
	readline.PcItem(".exit"),
)

const helpText = `
workstats - cumulative work counters for a compute client.

Commands:
  batch POSITIONS NODES [NPS]  - Record one finished batch, optionally with
                                 a per-core nodes-per-second sample
  .stats                       - Show the current counters and estimate
  .help                        - Show this help message
  .exit                        - Exit the program
`

var errExit = errors.New("exit requested")

// execute runs a single prompt line against rec and writes any output to out.
// It returns errExit when the session should end.
func execute(rec *recorder.Recorder, line string, out io.Writer) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch strings.ToLower(parts[0]) {
	case ".help":
		fmt.Fprint(out, helpText)

	case ".exit", ".quit":
		return errExit

	case ".stats":
		printStats(rec, out)

	case "batch":
		if len(parts) < 3 || len(parts) > 4 {
			return fmt.Errorf("usage: batch POSITIONS NODES [NPS]")
		}
		positions, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid positions %q: %w", parts[1], err)
		}
		nodes, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid nodes %q: %w", parts[2], err)
		}

		if len(parts) == 4 {
			nps, err := strconv.ParseUint(parts[3], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid nps %q: %w", parts[3], err)
			}
			rec.RecordBatchWithThroughput(positions, nodes, uint32(nps))
		} else {
			rec.RecordBatch(positions, nodes)
		}
		fmt.Fprintln(out, rec)

	default:
		return fmt.Errorf("unknown command %q, enter .help for usage hints", parts[0])
	}

	return nil
}

func printStats(rec *recorder.Recorder, out io.Writer) {
	s := rec.Stats()
	fmt.Fprintf(out, "Batches:     %d\n", s.TotalBatches)
	fmt.Fprintf(out, "Positions:   %d\n", s.TotalPositions)
	fmt.Fprintf(out, "Nodes:       %d\n", s.TotalNodes)
	fmt.Fprintf(out, "Throughput:  %s\n", rec.Throughput())
	fmt.Fprintf(out, "Cores:       %d\n", rec.Cores())

	if rec.HasStatsFile() {
		fmt.Fprintf(out, "Stats file:  %s (fingerprint %016x)\n", rec.StatsFilePath(), s.Fingerprint())
	} else {
		fmt.Fprintln(out, "Stats file:  disabled")
	}
	if rec.HasEventLog() {
		fmt.Fprintln(out, "Event log:   enabled")
	} else {
		fmt.Fprintln(out, "Event log:   disabled")
	}
}
