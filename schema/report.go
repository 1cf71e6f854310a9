package schema

import (
	"io"
	"time"
)

type Status string

const STATUS_PENDING Status = "pending"
const STATUS_RUNNING Status = "running"
const STATUS_SUCCESS Status = "success"
const STATUS_FAILED Status = "failed"
const STATUS_ALLOWED_FAILURE Status = "allowed failure"
const STATUS_SKIPPED Status = "skipped"

// Green reports whether the status counts as green for aggregation.
func (s Status) Green() bool {
	return s == STATUS_SUCCESS || s == STATUS_ALLOWED_FAILURE
}

// Passed reports whether the status is actually green.
func (s Status) Passed() bool {
	return s == STATUS_SUCCESS
}

type Error string

func (err Error) Error() string {
	return string(err)
}

const ERROR_UNAVAILABLE = Error("not available")
const ERROR_RELEASED = Error("secrets have been released")

type LogReader interface {
	io.ReadSeekCloser

	ReadAt(p []byte, offset int64) (n int, err error)
	Size() (int64, bool)
}

type LogReaderProvider interface {
	Available() bool
	Reader() (LogReader, error)
	io.Closer
}

type StageResult struct {
	Stage    string        `json:"stage"`
	Status   Status        `json:"status"`
	ExitCode int           `json:"exitCode"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type PublishResult struct {
	Action   string        `json:"action"`
	Status   Status        `json:"status"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

type RunReport struct {
	Run     RunConfiguration `json:"run"`
	Status  Status           `json:"status"`
	Stages  []StageResult    `json:"stages"`
	Publish []PublishResult  `json:"publish,omitempty"`

	Logs LogReaderProvider `json:"-"`
}

// FailedStage returns the first stage that did not succeed.
func (r RunReport) FailedStage() (StageResult, bool) {
	for _, stage := range r.Stages {
		if stage.Status == STATUS_FAILED {
			return stage, true
		}
	}
	return StageResult{}, false
}

type InvocationReport struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Status     Status          `json:"status"`
	Facts      map[string]Fact `json:"facts,omitempty"`
	Runs       []RunReport     `json:"runs"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Aggregate derives the invocation status from its runs.
// Allowed failures count as green.
func Aggregate(runs []RunReport) Status {
	for _, run := range runs {
		if !run.Status.Green() {
			return STATUS_FAILED
		}
	}
	return STATUS_SUCCESS
}

func (r InvocationReport) ExitCode() int {
	if r.Status.Passed() {
		return 0
	}
	return 1
}

// Notification is what notification sinks and notifier plugins receive.
type Notification struct {
	Subject string            `json:"subject"`
	Summary string            `json:"summary"`
	Report  InvocationReport  `json:"report"`
	Tails   map[string]string `json:"tails,omitempty"`
}
