package types

import (
	"fmt"
	"time"
)

// Job is one submitted recording. It is never mutated after submission;
// the scheduler derives a copy when it needs to set OverwriteTarget.
type Job struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner"`
	SourceRef       string    `json:"source_ref"`
	DisplayName     string    `json:"display_name"`
	Submitter       string    `json:"submitter,omitempty"`
	OverwriteTarget *Location `json:"overwrite_target,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// WithOverwrite returns a copy of the job targeting loc.
func (j Job) WithOverwrite(loc Location) Job {
	j.OverwriteTarget = &loc
	return j
}

// Location points at an existing record in the evaluation workbook.
type Location struct {
	Sheet string `json:"sheet"`
	Row   int    `json:"row"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s!A%d", l.Sheet, l.Row)
}

type Choice string

const (
	ChoiceOverwrite Choice = "overwrite"
	ChoiceSkip      Choice = "skip"
)

func (c Choice) Valid() bool {
	return c == ChoiceOverwrite || c == ChoiceSkip
}

// Decision resolves a suspended job. JobID must match the suspended job of Owner.
type Decision struct {
	Owner  string `json:"owner"`
	JobID  string `json:"job_id"`
	Choice Choice `json:"choice"`
}
