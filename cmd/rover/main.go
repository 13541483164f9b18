// Command rover runs one mission and prints the rover's path log.
//
//	rover <gridSize> <componentCount> x,y ... startX,startY
//	rover -mission configs/missions/corners.yaml
//
// Exit status: 0 all components collected, 1 invalid input, 2 usage error,
// 3 the run stopped early (sweep exhausted or step limit).
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"rovergrid.ai/internal/persistence/indexdb"
	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/sim/driver"
	"rovergrid.ai/internal/sim/encoding"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/tuning"
)

const (
	exitOK         = 0
	exitInvalid    = 1
	exitUsage      = 2
	exitIncomplete = 3
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rover", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		missionPath = fs.String("mission", "", "mission document (.yaml, .json or .toml) instead of positional args")
		tuningPath  = fs.String("tuning", "", "path to tuning.yaml (optional)")
		maxSteps    = fs.Int("max_steps", 0, "lower the move cap for this run (0 = tuning value)")
		dataDir     = fs.String("data", "", "record step log and run snapshot under this directory (optional)")
		dbPath      = fs.String("db", "", "record the run into this SQLite index (optional)")
		jsonOut     = fs.Bool("json", false, "print the RESULT message as JSON instead of the bare path log")
		verbose     = fs.Bool("v", false, "print a run summary to stderr")
		colorMode   = fs.String("color", "auto", "colored stderr output: auto, always or never")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: rover [flags] <gridSize> <componentCount> x,y ... startX,startY")
		fmt.Fprintln(stderr, "       rover [flags] -mission <file>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	switch *colorMode {
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	case "auto":
	default:
		fmt.Fprintf(stderr, "bad -color %q\n", *colorMode)
		return exitUsage
	}
	red := color.New(color.FgRed)

	var (
		m   mission.Mission
		err error
	)
	switch {
	case *missionPath != "" && fs.NArg() > 0:
		fmt.Fprintln(stderr, "use either -mission or positional arguments, not both")
		return exitUsage
	case *missionPath != "":
		m, err = mission.Load(*missionPath)
	case fs.NArg() > 0:
		m, err = mission.ParseArgs(fs.Args())
	default:
		fs.Usage()
		return exitUsage
	}
	if err != nil {
		red.Fprintf(stderr, "Error: %v\n", err)
		return exitInvalid
	}

	tune := tuning.Defaults()
	if *tuningPath != "" {
		if tune, err = tuning.Load(*tuningPath); err != nil {
			red.Fprintf(stderr, "Error: %v\n", err)
			return exitUsage
		}
	}
	if *maxSteps < 0 {
		fmt.Fprintln(stderr, "-max_steps must be >= 0")
		return exitUsage
	}

	logger := log.New(stderr, "[rover] ", log.LstdFlags|log.Lmicroseconds)
	rec, closeRec, err := openRecorders(*dataDir, *dbPath)
	if err != nil {
		red.Fprintf(stderr, "Error: %v\n", err)
		return exitUsage
	}
	defer func() {
		if err := closeRec(); err != nil {
			logger.Printf("close recorders: %v", err)
		}
	}()

	rep, err := driver.Run(ctx, m, driver.Options{
		Tuning:   tune,
		Recorder: rec,
		MaxSteps: *maxSteps,
		Logger:   logger,
	})
	if err != nil && rep.RunID == "" {
		red.Fprintf(stderr, "Error: %v\n", err)
		return exitInvalid
	}

	if *jsonOut {
		b, _ := json.Marshal(rep.ResultMsg(""))
		fmt.Fprintln(stdout, string(b))
	} else {
		fmt.Fprintln(stdout, rep.Result.Log.String())
	}
	if *verbose {
		printSummary(stderr, rep)
	}
	if err != nil {
		red.Fprintf(stderr, "interrupted: %v\n", err)
		return exitIncomplete
	}
	if !rep.Complete() {
		red.Fprintf(stderr, "incomplete: %s, collected %d of %d (pending %v)\n",
			rep.Result.Reason, rep.Result.Collected, len(m.Components), rep.Result.Pending)
		return exitIncomplete
	}
	return exitOK
}

func printSummary(w io.Writer, rep driver.Report) {
	label := color.New(color.FgCyan)
	reason := color.New(color.FgGreen)
	if !rep.Complete() {
		reason = color.New(color.FgYellow)
	}
	res := rep.Result
	label.Fprint(w, "run      ")
	fmt.Fprintln(w, rep.RunID)
	label.Fprint(w, "reason   ")
	reason.Fprintln(w, res.Reason)
	label.Fprint(w, "moves    ")
	fmt.Fprintf(w, "%d (log %d tokens)\n", res.Steps, len(res.Log))
	label.Fprint(w, "path     ")
	fmt.Fprintln(w, encoding.Compact(res.Log.String()))
	label.Fprint(w, "collect  ")
	fmt.Fprintf(w, "%d/%d seen=%d final=%s\n", res.Collected, len(rep.Mission.Components), res.Seen, res.Final)
	label.Fprint(w, "digest   ")
	fmt.Fprintln(w, res.Digest)
}

func openRecorders(dataDir, dbPath string) (driver.Recorder, func() error, error) {
	var (
		recs    driver.MultiRecorder
		closers []func() error
	)
	if dataDir != "" {
		f := runstore.NewFileRecorder(dataDir)
		recs = append(recs, f)
		closers = append(closers, f.Close)
	}
	if dbPath != "" {
		idx, err := indexdb.OpenSQLite(dbPath)
		if err != nil {
			for _, c := range closers {
				_ = c()
			}
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		recs = append(recs, idx)
		closers = append(closers, idx.Close)
	}
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}
	if len(recs) == 0 {
		return nil, closeAll, nil
	}
	return recs, closeAll, nil
}
