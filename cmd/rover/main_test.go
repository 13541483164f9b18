package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"rovergrid.ai/internal/persistence/runstore"
	"rovergrid.ai/internal/persistence/snapshot"
	"rovergrid.ai/internal/protocol"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append([]string{"-color", "never"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRun_PositionalArgs(t *testing.T) {
	code, out, errOut := runCLI(t, "3", "2", "0,0", "3,0", "2,2")
	if code != exitOK {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}
	if out != "SSWWPNNNESSSENNNESSSP\n" {
		t.Fatalf("stdout=%q", out)
	}
}

func TestRun_MissionFiles(t *testing.T) {
	cases := []struct {
		file string
		want string
	}{
		{"backfill.yaml", "NNNPSSP\n"},
		{"corners.yaml", "SSWWPNNNESSSENNNESSSP\n"},
	}
	for _, tc := range cases {
		code, out, errOut := runCLI(t, "-mission", filepath.Join("..", "..", "configs", "missions", tc.file))
		if code != exitOK || out != tc.want {
			t.Fatalf("%s: code=%d stdout=%q stderr=%s", tc.file, code, out, errOut)
		}
	}
}

func TestRun_ExitCodes(t *testing.T) {
	cases := []struct {
		name string
		args []string
		code int
	}{
		{"no input", nil, exitUsage},
		{"unknown flag", []string{"-nope"}, exitUsage},
		{"bad color", []string{"-color", "pink", "3", "1", "0,0", "0,0"}, exitUsage},
		{"both inputs", []string{"-mission", "x.yaml", "3", "1", "0,0", "0,0"}, exitUsage},
		{"arg count", []string{"3", "2", "0,0", "1,1"}, exitInvalid},
		{"zero grid", []string{"0", "1", "0,0", "0,0"}, exitInvalid},
		{"bad coordinate", []string{"3", "1", "a,b", "0,0"}, exitInvalid},
		{"out of bounds", []string{"3", "1", "9,9", "0,0"}, exitInvalid},
		{"missing file", []string{"-mission", "missing.yaml"}, exitInvalid},
		{"step limit", []string{"-max_steps", "3", "3", "2", "0,0", "3,0", "2,2"}, exitIncomplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, out, errOut := runCLI(t, tc.args...)
			if code != tc.code {
				t.Fatalf("code=%d want %d stdout=%q stderr=%s", code, tc.code, out, errOut)
			}
		})
	}
}

func TestRun_StepLimitPrintsPartialLog(t *testing.T) {
	code, out, errOut := runCLI(t, "-max_steps", "3", "3", "2", "0,0", "3,0", "2,2")
	if code != exitIncomplete || out != "SSW\n" || !strings.Contains(errOut, "STEP_LIMIT") {
		t.Fatalf("code=%d stdout=%q stderr=%s", code, out, errOut)
	}
}

func TestRun_JSONAndRecording(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "index.db")
	code, out, errOut := runCLI(t, "-json", "-v", "-data", dir, "-db", db, "3", "2", "0,3", "0,1", "0,0")
	if code != exitOK {
		t.Fatalf("code=%d stderr=%s", code, errOut)
	}
	var res protocol.ResultMsg
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if res.Log != "NNNPSSP" || res.Reason != "COMPLETE" || res.Components != 2 {
		t.Fatalf("result=%+v", res)
	}
	if !strings.Contains(errOut, res.RunID) {
		t.Fatalf("summary should name the run: %s", errOut)
	}

	snap, err := snapshot.ReadSnapshot(runstore.SnapshotPath(dir, res.RunID))
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}
	if snap.Result.Digest != res.Digest {
		t.Fatalf("snapshot digest=%s want %s", snap.Result.Digest, res.Digest)
	}
}
