// Command memscope-dump walks every 4 KiB page of the virtual address
// range [-start, -end) of a target and logs how many pages translate
// successfully and how many do not, the
// way internal/cmd/benchmark exercises cc's VM surface from a thin CLI
// rather than being a feature of its own.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/tinyrange/memscope/connector"
	"github.com/tinyrange/memscope/internal/memlog"
	"github.com/tinyrange/memscope/mmu"
	"github.com/tinyrange/memscope/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "memscope-dump: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	targetFile := flag.String("target", "", "path to a connector target YAML file")
	start := flag.Uint64("start", 0, "first virtual address to scan")
	end := flag.Uint64("end", 0x10000000, "exclusive end of the virtual address range to scan")
	batch := flag.Int("batch", 512, "number of pages translated per batched call")
	debug := flag.Bool("debug", false, "enable debug logging")
	debugFile := flag.String("debug-file", "", "write logs to this file instead of stderr")
	flag.Parse()

	if *targetFile == "" {
		return errors.New("memscope-dump: -target is required")
	}

	log, closeLog, err := memlog.New(memlog.Options{Debug: *debug, File: *debugFile})
	if err != nil {
		return fmt.Errorf("memscope-dump: %w", err)
	}
	defer closeLog()

	target, err := connector.Load(*targetFile)
	if err != nil {
		return fmt.Errorf("memscope-dump: %w", err)
	}

	pageSize := target.Arch.PageSize()
	engine := &mmu.Engine{Log: log}

	var bar *progressbar.ProgressBar
	if term.IsTerminal(int(os.Stdout.Fd())) {
		total := (*end - *start) / uint64(pageSize)
		bar = progressbar.Default(int64(total))
		defer bar.Close()
	}

	ctx := context.Background()
	var present, missing int

	addrs := make([]types.Address, 0, *batch)
	flush := func() error {
		if len(addrs) == 0 {
			return nil
		}
		results := target.Arch.VirtToPhysBatch(ctx, engine, target.Mem, target.DTB, addrs)
		for _, r := range results {
			if r.Err != nil {
				missing++
				continue
			}
			present++
		}
		if bar != nil {
			bar.Add(len(addrs))
		}
		addrs = addrs[:0]
		return nil
	}

	for v := *start; v < *end; v += uint64(pageSize) {
		addrs = append(addrs, types.Address(v))
		if len(addrs) == *batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	slog.Info("scan complete", "present", present, "missing", missing)
	return nil
}
