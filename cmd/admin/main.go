package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	plog "rovergrid.ai/internal/persistence/log"
	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/persistence/snapshot"
	"rovergrid.ai/internal/sim/encoding"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "show":
			showCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "remote":
			remoteCmd(os.Args[2:])
			return
		case "health":
			healthCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	limit := fs.Int("limit", 20, "max runs to print (0 = all)")
	_ = fs.Parse(args)

	if err := listRuns(os.Stdout, *dataDir, *limit); err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
}

func listRuns(w io.Writer, dataDir string, limit int) error {
	runs, err := runstore.List(dataDir)
	if err != nil {
		return err
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	id := color.New(color.FgCyan)
	for _, r := range runs {
		id.Fprint(w, r.RunID)
		fmt.Fprintf(w, "  %s  ", r.ModTime.UTC().Format("2006-01-02T15:04:05Z"))
		reasonColor(r.Header.Reason).Fprint(w, r.Header.Reason)
		fmt.Fprintf(w, "  moves=%d\n", r.Header.Steps)
	}
	return nil
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	steps := fs.Bool("steps", false, "also print the recorded step log")
	_ = fs.Parse(args)

	runID := strings.TrimSpace(fs.Arg(0))
	if runID == "" {
		fmt.Fprintln(os.Stderr, "usage: admin show [-data dir] [-steps] <run_id|latest>")
		os.Exit(2)
	}
	if err := showRun(os.Stdout, *dataDir, runID, *steps); err != nil {
		fmt.Fprintln(os.Stderr, "show:", err)
		os.Exit(1)
	}
}

func showRun(w io.Writer, dataDir, runID string, withSteps bool) error {
	if runID == "latest" {
		info, err := runstore.Latest(dataDir)
		if err != nil {
			return err
		}
		runID = info.RunID
	}
	snap, err := snapshot.ReadSnapshot(runstore.SnapshotPath(dataDir, runID))
	if err != nil {
		return err
	}
	label := color.New(color.FgCyan)
	line := func(k, format string, args ...any) {
		label.Fprintf(w, "%-10s", k)
		fmt.Fprintf(w, format+"\n", args...)
	}
	line("run", "%s", snap.Header.RunID)
	if snap.Mission.Name != "" {
		line("mission", "%s", snap.Mission.Name)
	}
	line("grid", "size=%d start=%v components=%d", snap.Mission.GridSize, snap.Mission.Start, len(snap.Mission.Components))
	label.Fprintf(w, "%-10s", "reason")
	reasonColor(snap.Result.Reason).Fprintln(w, snap.Result.Reason)
	line("collected", "%d seen=%d pending=%v", snap.Result.Collected, snap.Result.Seen, snap.Result.Pending)
	line("moves", "%d (max_steps=%d)", snap.Result.Steps, snap.MaxSteps)
	line("final", "%v", snap.Result.Final)
	line("started", "%s (%d ms)", snap.StartedAt, snap.DurationMS)
	line("digest", "%s", snap.Result.Digest)
	line("log", "%s", snap.Result.Log)
	line("compact", "%s", encoding.Compact(snap.Result.Log))

	if !withSteps {
		return nil
	}
	entries, err := plog.ReadSteps(runstore.RunDir(dataDir, runID))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func reasonColor(reason string) *color.Color {
	switch reason {
	case "COMPLETE":
		return color.New(color.FgGreen)
	case "":
		return color.New(color.FgRed)
	}
	return color.New(color.FgYellow)
}

func printJSON(w io.Writer, v any) {
	b, _ := json.Marshal(v)
	fmt.Fprintln(w, string(b))
}
