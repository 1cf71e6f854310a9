package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/reeveci/reeve-matrix/filter"
	"github.com/reeveci/reeve-matrix/logs"
	"github.com/reeveci/reeve-matrix/pipeline"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	lock  sync.Mutex
	fail  map[string]bool
	calls []string
}

func (f *fakeRunner) RunCommand(ctx context.Context, command string, env []string, output io.Writer) (int, error) {
	f.lock.Lock()
	f.calls = append(f.calls, command)
	f.lock.Unlock()

	if f.fail[command] {
		return 1, errors.New("exit status 1")
	}
	return 0, nil
}

type fakeSecrets map[string]string

func (s fakeSecrets) Acquire(names ...string) (map[string]schema.Env, error) {
	result := make(map[string]schema.Env, len(names))
	for _, name := range names {
		value, ok := s[name]
		if !ok {
			return nil, fmt.Errorf("cannot decrypt secret \"%s\"", name)
		}
		result[name] = schema.Env{Value: value, Secret: true}
	}
	return result, nil
}

func successReport(channel string) schema.RunReport {
	return schema.RunReport{
		Run:    schema.RunConfiguration{Channel: channel},
		Status: schema.STATUS_SUCCESS,
	}
}

func newPublisher(runner *fakeRunner, actions ...schema.PublishAction) *Publisher {
	return &Publisher{
		Primary: "stable",
		Actions: actions,
		Executor: &pipeline.Executor{
			Runner:  runner,
			Secrets: fakeSecrets{"DOC_TOKEN": "doc-secret", "COV_TOKEN": "cov-secret"},
		},
	}
}

func TestPublish_OnlyPrimaryChannelSuccess(t *testing.T) {
	action := schema.PublishAction{Name: "doc", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-doc"}}

	for _, report := range []schema.RunReport{
		successReport("beta"),
		{Run: schema.RunConfiguration{Channel: "stable"}, Status: schema.STATUS_FAILED},
		{Run: schema.RunConfiguration{Channel: "stable", AllowFailure: true}, Status: schema.STATUS_ALLOWED_FAILURE},
	} {
		runner := &fakeRunner{}
		publisher := newPublisher(runner, action)

		require.False(t, publisher.Eligible(report))
		require.Nil(t, publisher.Publish(context.Background(), report, nil, logs.New(io.Discard, "")))
		require.Empty(t, runner.calls)
	}
}

func TestPublish_AtMostOnce(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newPublisher(runner, schema.PublishAction{Name: "doc", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-doc"}})

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))
	require.Len(t, results, 1)
	require.Equal(t, schema.STATUS_SUCCESS, results[0].Status)

	require.Nil(t, publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, "")))
	require.Equal(t, []string{"upload-doc"}, runner.calls)
}

func TestPublish_ActionsAreIsolated(t *testing.T) {
	runner := &fakeRunner{fail: map[string]bool{"upload-doc": true}}
	publisher := newPublisher(runner,
		schema.PublishAction{Name: "doc", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-doc"}, Secrets: []string{"DOC_TOKEN"}},
		schema.PublishAction{Name: "coverage", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-coverage"}, Secrets: []string{"COV_TOKEN"}},
	)

	report := successReport("stable")
	results := publisher.Publish(context.Background(), report, nil, logs.New(io.Discard, ""))

	require.Len(t, results, 2)
	require.Equal(t, schema.STATUS_FAILED, results[0].Status)
	require.Equal(t, "exit status 1", results[0].Error)
	require.Equal(t, schema.STATUS_SUCCESS, results[1].Status)
	require.Equal(t, []string{"upload-doc", "upload-coverage"}, runner.calls)
	require.Equal(t, schema.STATUS_SUCCESS, report.Status)
}

func TestPublish_MissingSecretFailsOnlyThatAction(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newPublisher(runner,
		schema.PublishAction{Name: "doc", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-doc"}, Secrets: []string{"UNKNOWN"}},
		schema.PublishAction{Name: "coverage", Kind: schema.PUBLISH_KIND_COMMAND, Commands: []string{"upload-coverage"}},
	)

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))

	require.Equal(t, schema.STATUS_FAILED, results[0].Status)
	require.Contains(t, results[0].Error, "UNKNOWN")
	require.Equal(t, schema.STATUS_SUCCESS, results[1].Status)
	require.Equal(t, []string{"upload-coverage"}, runner.calls)
}

func TestPublish_Conditions(t *testing.T) {
	runner := &fakeRunner{}
	publisher := newPublisher(runner,
		schema.PublishAction{
			Name:     "release",
			Kind:     schema.PUBLISH_KIND_COMMAND,
			Commands: []string{"release"},
			When:     map[string]schema.Condition{"branch": {Include: []string{"main"}}},
		},
		schema.PublishAction{
			Name:     "stable-only",
			Kind:     schema.PUBLISH_KIND_COMMAND,
			Commands: []string{"stable-only"},
			When:     map[string]schema.Condition{"channel": {Include: []string{"stable"}}},
		},
	)
	publisher.Facts = map[string]schema.Fact{"branch": {"feature"}}

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))

	require.Equal(t, schema.STATUS_SKIPPED, results[0].Status)
	require.Equal(t, schema.STATUS_SUCCESS, results[1].Status)
	require.Equal(t, []string{"stable-only"}, runner.calls)
}

func TestPublish_Upload(t *testing.T) {
	var (
		gotAuth, gotType, gotBody string
	)
	router := chi.NewRouter()
	router.Post("/upload/{project}", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusCreated)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coverage.json"), []byte(`{"lines":87.5}`), 0o644))

	publisher := newPublisher(&fakeRunner{}, schema.PublishAction{
		Name:        "coverage",
		Kind:        schema.PUBLISH_KIND_UPLOAD,
		URL:         server.URL + "/upload/my-crate",
		File:        "coverage.json",
		TokenSecret: "COV_TOKEN",
		ContentType: "application/json",
	})
	publisher.Dir = dir

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))

	require.Len(t, results, 1)
	require.Equal(t, schema.STATUS_SUCCESS, results[0].Status, results[0].Error)
	require.Equal(t, "Bearer cov-secret", gotAuth)
	require.Equal(t, "application/json", gotType)
	require.Equal(t, `{"lines":87.5}`, gotBody)
}

func TestPublish_UploadRejectedIsMasked(t *testing.T) {
	router := chi.NewRouter()
	router.Post("/upload", func(w http.ResponseWriter, r *http.Request) {
		// echo the token back, as a misbehaving server might
		http.Error(w, "bad token "+r.Header.Get("Authorization"), http.StatusUnauthorized)
	})
	server := httptest.NewServer(router)
	defer server.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.xml"), []byte("<report/>"), 0o644))

	publisher := newPublisher(&fakeRunner{}, schema.PublishAction{
		Name:        "coverage",
		Kind:        schema.PUBLISH_KIND_UPLOAD,
		URL:         server.URL + "/upload",
		File:        "report.xml",
		TokenSecret: "COV_TOKEN",
	})
	publisher.Dir = dir
	publisher.Masker = filter.NewMasker([]string{"cov-secret"})

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))

	require.Equal(t, schema.STATUS_FAILED, results[0].Status)
	require.Contains(t, results[0].Error, "status 401")
	require.NotContains(t, results[0].Error, "cov-secret")
	require.Contains(t, results[0].Error, filter.MASK)
}

func TestPublish_UploadMissingFile(t *testing.T) {
	publisher := newPublisher(&fakeRunner{}, schema.PublishAction{
		Name: "coverage",
		Kind: schema.PUBLISH_KIND_UPLOAD,
		URL:  "http://127.0.0.1:1/upload",
		File: filepath.Join(t.TempDir(), "missing.json"),
	})

	results := publisher.Publish(context.Background(), successReport("stable"), nil, logs.New(io.Discard, ""))

	require.Equal(t, schema.STATUS_FAILED, results[0].Status)
}
