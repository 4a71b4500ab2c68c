// Package runscript launches the console CAD host on a script, one drawing
// at a time, and reports its exit code and captured output.
package runscript

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultExecutable is the console host binary name inside the program dir.
const DefaultExecutable = "accoreconsole.exe"

// ExitTimeout is reported when the host did not finish in time.
const ExitTimeout = -1

type Result struct {
	File     string
	ExitCode int
	Output   string
	Took     time.Duration
}

func (r Result) OK() bool { return r.ExitCode == 0 }

// Args builds the host command line. An empty file runs the script without
// opening a drawing.
func Args(script, file string) []string {
	if file == "" {
		return []string{"/s", script}
	}
	return []string{"/i", file, "/readonly", "/s", script}
}

// Run starts exe and waits up to timeout. A start failure yields exit code 1
// with the error text as output.
func Run(ctx context.Context, exe string, args []string, timeout time.Duration) Result {
	start := time.Now()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = &out
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := Result{Output: out.String(), Took: time.Since(start)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		res.ExitCode = 0
	case ctx.Err() != nil:
		res.ExitCode = ExitTimeout
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = 1
		res.Output = err.Error()
	}
	return res
}

type Runner struct {
	ProgramDir string
	Executable string
	Timeout    time.Duration
	Logger     *slog.Logger
}

func (r Runner) exe() string {
	name := r.Executable
	if name == "" {
		name = DefaultExecutable
	}
	if r.ProgramDir == "" {
		return name
	}
	return filepath.Join(r.ProgramDir, name)
}

// RunFiles runs script once per file, in order. Failures are reported in the
// results and do not stop the batch; a canceled ctx stops it.
func (r Runner) RunFiles(ctx context.Context, script string, files []string) []Result {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	if len(files) == 0 {
		files = []string{""}
	}
	out := make([]Result, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			break
		}
		res := Run(ctx, r.exe(), Args(script, f), r.Timeout)
		res.File = f
		switch {
		case res.ExitCode == ExitTimeout:
			log.Warn("script timed out", "file", f, "timeout", r.Timeout)
		case !res.OK():
			log.Warn("script failed", "file", f, "exit_code", res.ExitCode)
		default:
			log.Debug("script ok", "file", f, "took", res.Took)
		}
		out = append(out, res)
	}
	return out
}
