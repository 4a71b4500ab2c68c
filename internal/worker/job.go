package worker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mohammed-shakir/raceway-cad/internal/scan"
)

var ErrInvalidJob = errors.New("invalid scan job")

// Job is one scan request read from the jobs topic. Seq orders retries of
// the same run; a redelivered job with a Seq already processed is skipped.
type Job struct {
	RunID           string   `json:"runId"`
	Seq             uint64   `json:"seq"`
	Paths           []string `json:"paths"`
	Pattern         string   `json:"pattern,omitempty"`
	Names           []string `json:"names,omitempty"`
	IncludeGeometry bool     `json:"includeGeometry,omitempty"`
	Formats         []string `json:"formats,omitempty"`
}

func (j Job) Validate() error {
	if strings.TrimSpace(j.RunID) == "" {
		return fmt.Errorf("%w: runId is required", ErrInvalidJob)
	}
	if len(j.Paths) == 0 {
		return fmt.Errorf("%w: run %s has no paths", ErrInvalidJob, j.RunID)
	}
	for i, p := range j.Paths {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("%w: run %s path %d is empty", ErrInvalidJob, j.RunID, i)
		}
	}
	return nil
}

func (j Job) Query() scan.Query {
	return scan.Query{Pattern: j.Pattern, Names: j.Names, IncludeGeometry: j.IncludeGeometry}
}
