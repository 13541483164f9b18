package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/rover"
)

// Files lists the rotated files of one writer in chronological order.
func Files(baseDir, prefix string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(baseDir, prefix+"-*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadJSONL decodes every line of every rotated file, oldest first.
func ReadJSONL[T any](baseDir, prefix string, fn func(T) error) error {
	paths, err := Files(baseDir, prefix)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := readFile(p, fn); err != nil {
			return fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

func readFile[T any](path string, fn func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(v); err != nil {
			return err
		}
	}
	return sc.Err()
}

func ReadSteps(runDir string) ([]rover.StepEntry, error) {
	var out []rover.StepEntry
	err := ReadJSONL(filepath.Join(runDir, "steps"), "steps", func(e rover.StepEntry) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func ReadRuns(dataDir string) ([]protocol.ResultMsg, error) {
	var out []protocol.ResultMsg
	err := ReadJSONL(filepath.Join(dataDir, "journal"), "runs", func(m protocol.ResultMsg) error {
		out = append(out, m)
		return nil
	})
	return out, err
}
