package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/reeveci/reeve-matrix/filter"
	"github.com/reeveci/reeve-matrix/logs"
	"github.com/reeveci/reeve-matrix/metrics"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/vars"
)

// SecretSource hands out decrypted secrets by name.
type SecretSource interface {
	Acquire(names ...string) (map[string]schema.Env, error)
}

// Executor runs the shared stage list for one run configuration at a time.
// It holds no per-run state and may be used by several runs concurrently.
type Executor struct {
	Runner  CommandRunner
	Secrets SecretSource
	Masker  *filter.Masker
	Logger  hclog.Logger
	Metrics metrics.Recorder
}

// Run executes stages strictly in order. A failed stage aborts the remaining stages
// unless the run is allowed to fail, in which case every stage still runs and the run
// ends as an allowed failure.
func (e *Executor) Run(ctx context.Context, run schema.RunConfiguration, stages []schema.Stage, env map[string]schema.Env, output logs.LogWriter) schema.RunReport {
	logger := e.logger().With("channel", run.Channel)
	recorder := e.recorder()

	report := schema.RunReport{
		Run:    run,
		Status: schema.STATUS_PENDING,
		Stages: make([]schema.StageResult, len(stages)),
	}
	for i, stage := range stages {
		report.Stages[i] = schema.StageResult{Stage: stage.Name, Status: schema.STATUS_PENDING}
	}

	start := time.Now()
	report.Status = schema.STATUS_RUNNING
	logger.Info("run started", "allow_failure", run.AllowFailure, "stages", len(stages))

	failed, aborted := false, false
	for i, stage := range stages {
		if aborted {
			report.Stages[i].Status = schema.STATUS_SKIPPED
			recorder.ObserveStage(run.Channel, stage.Name, schema.STATUS_SKIPPED, 0)
			continue
		}

		result := e.runStage(ctx, stage, env, output.Subsystem(stage.Name))
		report.Stages[i] = result
		recorder.ObserveStage(run.Channel, stage.Name, result.Status, result.Duration)

		if result.Status == schema.STATUS_FAILED {
			failed = true
			if run.AllowFailure {
				logger.Warn("stage failed, continuing since the channel is allowed to fail", "stage", stage.Name, "error", result.Error)
			} else {
				logger.Error("stage failed, skipping remaining stages", "stage", stage.Name, "error", result.Error)
				aborted = true
			}
			continue
		}
		logger.Debug("stage succeeded", "stage", stage.Name, "duration", result.Duration)
	}

	switch {
	case !failed:
		report.Status = schema.STATUS_SUCCESS
	case run.AllowFailure:
		report.Status = schema.STATUS_ALLOWED_FAILURE
	default:
		report.Status = schema.STATUS_FAILED
	}

	duration := time.Since(start)
	recorder.ObserveRun(run.Channel, report.Status, duration)
	logger.Info("run finished", "status", report.Status, "duration", duration)
	return report
}

func (e *Executor) runStage(ctx context.Context, stage schema.Stage, env map[string]schema.Env, output logs.LogWriter) (result schema.StageResult) {
	result = schema.StageResult{Stage: stage.Name, Status: schema.STATUS_RUNNING}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	if stage.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(stage.Timeout))
		defer cancel()
	}

	exitCode, err := e.Exec(ctx, stage.Commands, stage.Secrets, vars.Merge(env, vars.Layer(map[string]string{schema.STAGE_ENV: stage.Name}, vars.PRIORITY_MATRIX, false)), output)
	result.ExitCode = exitCode
	if err != nil {
		result.Status = schema.STATUS_FAILED
		result.Error = err.Error()
		return
	}
	result.Status = schema.STATUS_SUCCESS
	return
}

// Exec runs commands in order with the named secrets injected, stopping at the first
// failure. Secrets are acquired before any command starts; if that fails, nothing runs.
// All output passes through the masking filter.
func (e *Executor) Exec(ctx context.Context, commands []string, secretNames []string, env map[string]schema.Env, output logs.LogWriter) (int, error) {
	defer output.Flush()

	if err := ctx.Err(); err != nil {
		return -1, err
	}

	if len(secretNames) > 0 {
		if e.Secrets == nil {
			return -1, schema.ERROR_UNAVAILABLE
		}
		secretEnv, err := e.Secrets.Acquire(secretNames...)
		if err != nil {
			return -1, err
		}
		env = vars.Merge(secretEnv, env)
	}
	environ := vars.Environ(env)

	masked := filter.Writer(output, e.Masker)
	// output problems are reported but never decide the outcome
	defer func() {
		if err := masked.Close(); err != nil {
			e.logger().Warn("stage output could not be written", "error", err)
		}
	}()

	for _, command := range commands {
		fmt.Fprintf(masked, "$ %s\n", command)

		exitCode, err := e.Runner.RunCommand(ctx, command, environ, masked)
		if err != nil {
			return exitCode, err
		}
	}
	return 0, nil
}

func (e *Executor) logger() hclog.Logger {
	if e.Logger == nil {
		return hclog.NewNullLogger()
	}
	return e.Logger
}

func (e *Executor) recorder() metrics.Recorder {
	if e.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return e.Metrics
}
