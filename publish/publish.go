package publish

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/reeveci/reeve-matrix/conditions"
	"github.com/reeveci/reeve-matrix/filter"
	"github.com/reeveci/reeve-matrix/logs"
	"github.com/reeveci/reeve-matrix/metrics"
	"github.com/reeveci/reeve-matrix/pipeline"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/reeveci/reeve-matrix/vars"
)

const DEFAULT_CONTENT_TYPE = "application/octet-stream"

// Publisher runs the post-success actions of the primary channel.
type Publisher struct {
	Primary  string
	Actions  []schema.PublishAction
	Executor *pipeline.Executor
	Client   *http.Client
	// Working directory for relative upload files.
	Dir     string
	Facts   map[string]schema.Fact
	Masker  *filter.Masker
	Logger  hclog.Logger
	Metrics metrics.Recorder

	published atomic.Bool
}

// Eligible reports whether report may trigger publishing: it must belong to the primary
// channel and be actually green. An allowed failure does not qualify.
func (p *Publisher) Eligible(report schema.RunReport) bool {
	return report.Run.Channel == p.Primary && report.Status == schema.STATUS_SUCCESS
}

// Publish runs every action in order, at most once per Publisher. Actions are isolated:
// a failing action never prevents the following ones and never changes report.Status.
func (p *Publisher) Publish(ctx context.Context, report schema.RunReport, env map[string]schema.Env, output logs.LogWriter) []schema.PublishResult {
	logger := p.logger().With("channel", report.Run.Channel)

	if !p.Eligible(report) {
		logger.Debug("not publishing", "primary", p.Primary, "status", report.Status)
		return nil
	}
	if !p.published.CompareAndSwap(false, true) {
		logger.Warn("publish actions already ran for this invocation")
		return nil
	}

	facts := make(map[string]schema.Fact, len(p.Facts)+1)
	for key, fact := range p.Facts {
		facts[key] = fact
	}
	facts["channel"] = schema.Fact{report.Run.Channel}

	results := make([]schema.PublishResult, 0, len(p.Actions))
	for _, action := range p.Actions {
		result := p.runAction(ctx, action, facts, env, output.Subsystem("publish:"+action.Name))
		p.recorder().ObservePublish(action.Name, result.Status, result.Duration)

		switch result.Status {
		case schema.STATUS_FAILED:
			logger.Error("publish action failed", "action", action.Name, "error", result.Error)
		case schema.STATUS_SKIPPED:
			logger.Info("publish action skipped, conditions not met", "action", action.Name)
		default:
			logger.Info("publish action succeeded", "action", action.Name, "duration", result.Duration)
		}
		results = append(results, result)
	}
	return results
}

func (p *Publisher) runAction(ctx context.Context, action schema.PublishAction, facts map[string]schema.Fact, env map[string]schema.Env, output logs.LogWriter) (result schema.PublishResult) {
	result = schema.PublishResult{Action: action.Name, Status: schema.STATUS_RUNNING}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	ok, err := conditions.Check(facts, action.When, vars.Public(env))
	if err != nil {
		result.Status = schema.STATUS_FAILED
		result.Error = err.Error()
		return
	}
	if !ok {
		result.Status = schema.STATUS_SKIPPED
		return
	}

	if action.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(action.Timeout))
		defer cancel()
	}

	switch action.Kind {
	case schema.PUBLISH_KIND_COMMAND:
		if p.Executor == nil {
			err = schema.ERROR_UNAVAILABLE
			break
		}
		_, err = p.Executor.Exec(ctx, action.Commands, action.Secrets, env, output)

	case schema.PUBLISH_KIND_UPLOAD:
		err = p.upload(ctx, action, output)

	default:
		err = fmt.Errorf("unknown publish kind \"%s\"", action.Kind)
	}

	if err != nil {
		result.Status = schema.STATUS_FAILED
		result.Error = p.Masker.Mask(err.Error())
		return
	}
	result.Status = schema.STATUS_SUCCESS
	return
}

func (p *Publisher) upload(ctx context.Context, action schema.PublishAction, output logs.LogWriter) error {
	defer output.Flush()

	var token string
	if action.TokenSecret != "" {
		if p.Executor == nil || p.Executor.Secrets == nil {
			return schema.ERROR_UNAVAILABLE
		}
		secretEnv, err := p.Executor.Secrets.Acquire(action.TokenSecret)
		if err != nil {
			return err
		}
		token = secretEnv[action.TokenSecret].Value
	}

	path := action.File
	if !filepath.IsAbs(path) && p.Dir != "" {
		path = filepath.Join(p.Dir, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, action.URL, file)
	if err != nil {
		return err
	}
	request.ContentLength = info.Size()
	contentType := action.ContentType
	if contentType == "" {
		contentType = DEFAULT_CONTENT_TYPE
	}
	request.Header.Set("Content-Type", contentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	output.Printf("uploading %s (%d bytes) to %s\n", action.File, info.Size(), action.URL)

	response, err := p.client().Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("upload rejected with status %d - %s", response.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, response.Body)

	output.Printf("uploaded with status %d\n", response.StatusCode)
	return nil
}

func (p *Publisher) client() *http.Client {
	if p.Client == nil {
		return http.DefaultClient
	}
	return p.Client
}

func (p *Publisher) logger() hclog.Logger {
	if p.Logger == nil {
		return hclog.NewNullLogger()
	}
	return p.Logger
}

func (p *Publisher) recorder() metrics.Recorder {
	if p.Metrics == nil {
		return metrics.NoopRecorder{}
	}
	return p.Metrics
}
