package runner

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/reeveci/reeve-matrix/filter"
	"github.com/reeveci/reeve-matrix/gitinfo"
	"github.com/reeveci/reeve-matrix/logs"
	"github.com/reeveci/reeve-matrix/matrix"
	"github.com/reeveci/reeve-matrix/metrics"
	"github.com/reeveci/reeve-matrix/notify"
	"github.com/reeveci/reeve-matrix/pipeline"
	"github.com/reeveci/reeve-matrix/publish"
	"github.com/reeveci/reeve-matrix/queue"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/secrets"
	"github.com/reeveci/reeve-matrix/streams"
	"github.com/reeveci/reeve-matrix/vars"
)

const NOTIFY_TIMEOUT = 30 * time.Second

// Environment passed to stages when the process environment is not inherited.
var baseEnvKeys = []string{"PATH", "HOME", "USER", "LANG", "TMPDIR", "TERM"}

type Options struct {
	// Working directory of stages and publish actions.
	Dir string
	// Decryption key for the secrets of the document.
	Key string
	// Receives the prefixed stage output.
	Output    io.Writer
	Decorator logs.Decorator
	Logger    hclog.Logger
	Metrics   metrics.Recorder

	// Optional overrides
	CommandRunner pipeline.CommandRunner
	HTTPClient    *http.Client
	Facts         map[string]schema.Fact
	Sinks         []notify.Sink
}

// Runner executes one pipeline document. Every call to Run is an independent invocation
// starting from pending.
type Runner struct {
	definition *schema.PipelineDefinition
	opts       Options
}

func New(definition *schema.PipelineDefinition, opts Options) *Runner {
	if opts.Output == nil {
		opts.Output = io.Discard
	}
	if opts.Decorator == nil {
		opts.Decorator = logs.NewDefaultDecorator("")
	}
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoopRecorder{}
	}
	return &Runner{definition: definition, opts: opts}
}

func (r *Runner) Run(ctx context.Context) (schema.InvocationReport, error) {
	definition := r.definition
	report := schema.InvocationReport{
		ID:        uuid.NewString(),
		Name:      definition.Name,
		Status:    schema.STATUS_RUNNING,
		StartedAt: time.Now(),
	}
	logger := r.opts.Logger.With("invocation", report.ID)

	commandRunner := r.opts.CommandRunner
	if commandRunner == nil {
		shellRunner, err := pipeline.NewShellRunner(definition.Shell, r.opts.Dir)
		if err != nil {
			return report, err
		}
		commandRunner = shellRunner
	}

	vault := secrets.Open(r.opts.Key, definition.Secrets.KeyHash, definition.Secrets.Values)
	defer vault.Release()
	if failed := vault.Failed(); len(failed) > 0 {
		logger.Warn("secrets could not be decrypted, stages and actions requiring them will fail", "secrets", failed)
	}
	masker := filter.NewMasker(vault.Values())

	report.Facts = r.opts.Facts
	if report.Facts == nil {
		facts, err := gitinfo.Facts(r.opts.Dir)
		if err != nil {
			logger.Warn("cannot read repository facts", "error", err)
		}
		report.Facts = facts
	}

	executor := &pipeline.Executor{
		Runner:  commandRunner,
		Secrets: vault,
		Masker:  masker,
		Logger:  logger.Named("executor"),
		Metrics: r.opts.Metrics,
	}
	publisher := &publish.Publisher{
		Primary:  definition.PrimaryChannel,
		Actions:  definition.Publish,
		Executor: executor,
		Client:   r.opts.HTTPClient,
		Dir:      r.opts.Dir,
		Facts:    report.Facts,
		Masker:   masker,
		Logger:   logger.Named("publish"),
		Metrics:  r.opts.Metrics,
	}

	runs := matrix.Expand(definition.Channels, definition.AllowFailures)
	baseEnv := r.baseEnv()
	console := &lockedWriter{target: r.opts.Output}

	report.Runs = make([]schema.RunReport, len(runs))
	for i, run := range runs {
		report.Runs[i] = schema.RunReport{Run: run, Status: schema.STATUS_PENDING}
	}

	pending := queue.Sync(queue.NewQueue(runs...))
	workers := definition.Parallel
	if workers <= 0 || workers > len(runs) {
		workers = len(runs)
	}

	logger.Info("invocation started", "name", definition.Name, "runs", len(runs), "parallel", workers, "primary", definition.PrimaryChannel, "secrets", vault.Len())

	queue.Drain(pending, workers, func(run schema.RunConfiguration) {
		// each worker writes only its own slot
		report.Runs[run.Index] = r.execute(ctx, run, executor, publisher, baseEnv, console)
	})

	report.Status = schema.Aggregate(report.Runs)
	report.FinishedAt = time.Now()
	r.opts.Metrics.ObserveInvocation(report.Status, report.FinishedAt.Sub(report.StartedAt))
	logger.Info("invocation finished", "status", report.Status, "duration", report.FinishedAt.Sub(report.StartedAt))

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), NOTIFY_TIMEOUT)
	defer cancel()
	r.notifier(vault, logger).Notify(notifyCtx, report)

	return report, nil
}

func (r *Runner) execute(ctx context.Context, run schema.RunConfiguration, executor *pipeline.Executor, publisher *publish.Publisher, baseEnv map[string]schema.Env, console io.Writer) schema.RunReport {
	capture := streams.NewMemCapture()
	// the capture feeds notifications and stays free of terminal styling
	output := logs.NewTargets(run.Channel,
		logs.Target{Writer: console, Decorator: r.opts.Decorator},
		logs.Target{Writer: capture, Decorator: logs.NewDefaultDecorator("")},
	)

	env := vars.Merge(baseEnv, vars.Layer(map[string]string{schema.CHANNEL_ENV: run.Channel}, vars.PRIORITY_MATRIX, false))

	report := executor.Run(ctx, run, r.definition.Stages, env, output)
	report.Publish = publisher.Publish(ctx, report, env, output)

	_ = output.Flush()
	_ = capture.Close()
	report.Logs = capture
	return report
}

// baseEnv is shared read-only by all runs; every run merges it into a fresh map.
func (r *Runner) baseEnv() map[string]schema.Env {
	var process map[string]schema.Env
	if r.definition.InheritEnv {
		process = vars.Process(r.definition.Secrets.KeyEnv)
	} else {
		all := vars.Process(r.definition.Secrets.KeyEnv)
		process = make(map[string]schema.Env, len(baseEnvKeys))
		for _, key := range baseEnvKeys {
			if value, ok := all[key]; ok {
				process[key] = value
			}
		}
	}
	return vars.Merge(vars.Layer(r.definition.Env, vars.PRIORITY_CONFIG, false), process)
}

func (r *Runner) notifier(vault *secrets.Vault, logger hclog.Logger) *notify.Notifier {
	config := r.definition.Notify
	logger = logger.Named("notify")

	sinks := []notify.Sink{&notify.LogSink{Logger: logger}}
	if config.Webhook != nil {
		sinks = append(sinks, &notify.WebhookSink{
			URL:         config.Webhook.URL,
			TokenSecret: config.Webhook.TokenSecret,
			Secrets:     vault,
			Client:      r.opts.HTTPClient,
		})
	}
	if config.Email != nil {
		sinks = append(sinks, &notify.EmailSink{Config: *config.Email, Secrets: vault})
	}
	if config.NATS != nil {
		sinks = append(sinks, &notify.NATSSink{URL: config.NATS.URL, Subject: config.NATS.Subject})
	}
	if len(config.Plugins) > 0 {
		env := vars.Environ(vars.Process(r.definition.Secrets.KeyEnv))
		for _, path := range config.Plugins {
			sinks = append(sinks, &notify.PluginSink{Path: path, Env: env, Logger: logger.Named("plugin")})
		}
	}
	sinks = append(sinks, r.opts.Sinks...)

	return &notify.Notifier{
		OnSuccess: config.OnSuccess,
		LogTail:   config.LogTail,
		Sinks:     sinks,
		Timeout:   NOTIFY_TIMEOUT,
		Logger:    logger,
		Metrics:   r.opts.Metrics,
	}
}

type lockedWriter struct {
	target io.Writer
	lock   sync.Mutex
}

func (w *lockedWriter) Write(b []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	return w.target.Write(b)
}
