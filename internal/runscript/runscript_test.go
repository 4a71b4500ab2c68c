package runscript

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func needSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestArgs(t *testing.T) {
	got := Args("/s/run.scr", "/d/A.dwg")
	want := []string{"/i", "/d/A.dwg", "/readonly", "/s", "/s/run.scr"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Args=%v want %v", got, want)
	}
	if got := Args("/s/run.scr", ""); !reflect.DeepEqual(got, []string{"/s", "/s/run.scr"}) {
		t.Fatalf("Args without file=%v", got)
	}
}

func TestRun_CapturesOutputAndExitCode(t *testing.T) {
	needSh(t)
	res := Run(context.Background(), "sh", []string{"-c", "echo scanned; exit 3"}, 5*time.Second)
	if res.ExitCode != 3 || res.OK() {
		t.Fatalf("exit=%d", res.ExitCode)
	}
	if strings.TrimSpace(res.Output) != "scanned" {
		t.Fatalf("output=%q", res.Output)
	}

	res = Run(context.Background(), "sh", []string{"-c", "echo ok"}, 5*time.Second)
	if !res.OK() {
		t.Fatalf("exit=%d", res.ExitCode)
	}
}

func TestRun_TimeoutReturnsMinusOne(t *testing.T) {
	needSh(t)
	res := Run(context.Background(), "sh", []string{"-c", "sleep 5"}, 50*time.Millisecond)
	if res.ExitCode != ExitTimeout {
		t.Fatalf("exit=%d want %d", res.ExitCode, ExitTimeout)
	}
	if res.Took > 4*time.Second {
		t.Fatalf("took %s; process was not killed", res.Took)
	}
}

func TestRun_StartFailure(t *testing.T) {
	res := Run(context.Background(), filepath.Join(t.TempDir(), "no-such-host"), nil, time.Second)
	if res.ExitCode != 1 || res.Output == "" {
		t.Fatalf("res=%+v", res)
	}
}

func TestRunner_RunFiles(t *testing.T) {
	needSh(t)
	dir := t.TempDir()
	// fake host: fails for drawings whose name contains "bad"
	host := filepath.Join(dir, "host.sh")
	script := "#!/bin/sh\ncase \"$2\" in *bad*) exit 2;; esac\necho \"$@\"\n"
	if err := os.WriteFile(host, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := Runner{ProgramDir: dir, Executable: "host.sh", Timeout: 5 * time.Second}
	res := r.RunFiles(context.Background(), "run.scr", []string{"a.dwg", "bad.dwg"})
	if len(res) != 2 {
		t.Fatalf("results=%d", len(res))
	}
	if !res[0].OK() || strings.TrimSpace(res[0].Output) != "/i a.dwg /readonly /s run.scr" || res[0].File != "a.dwg" {
		t.Fatalf("res[0]=%+v", res[0])
	}
	if res[1].ExitCode != 2 {
		t.Fatalf("res[1]=%+v", res[1])
	}

	res = r.RunFiles(context.Background(), "run.scr", nil)
	if len(res) != 1 || strings.TrimSpace(res[0].Output) != "/s run.scr" {
		t.Fatalf("no-file run=%+v", res)
	}
}
