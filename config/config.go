package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/reeveci/reeve-matrix/conditions"
	"github.com/reeveci/reeve-matrix/crypto"
	"github.com/reeveci/reeve-matrix/exe"
	"github.com/reeveci/reeve-matrix/schema"
	"gopkg.in/yaml.v3"
)

const DEFAULT_PATH = ".reeve-matrix.yml"
const DEFAULT_LOG_TAIL = 30

// Environment overrides
const (
	ENV_PARALLEL       = "REEVE_MATRIX_PARALLEL"
	ENV_SHELL          = "REEVE_MATRIX_SHELL"
	ENV_ALLOW_FAILURES = "REEVE_MATRIX_ALLOW_FAILURES"
	ENV_INHERIT_ENV    = "REEVE_MATRIX_INHERIT_ENV"
)

// Load reads, defaults and validates a pipeline document.
func Load(path string) (*schema.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	definition, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return definition, nil
}

func Parse(data []byte) (*schema.PipelineDefinition, error) {
	var definition schema.PipelineDefinition

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&definition); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty pipeline document")
		}
		return nil, fmt.Errorf("invalid pipeline document - %w", err)
	}

	ApplyDefaults(&definition)

	if err := Validate(&definition); err != nil {
		return nil, err
	}
	return &definition, nil
}

// ApplyDefaults fills unset fields and applies the environment overrides.
func ApplyDefaults(definition *schema.PipelineDefinition) {
	env := exe.OS()

	definition.Shell = env.String(ENV_SHELL, definition.Shell)
	if definition.Shell == "" {
		definition.Shell = schema.DEFAULT_SHELL
	}

	if extra := env.Fields(ENV_ALLOW_FAILURES); len(extra) > 0 {
		existing := make(map[string]bool, len(definition.AllowFailures))
		for _, channel := range definition.AllowFailures {
			existing[channel] = true
		}
		added := make([]string, 0, len(extra))
		for channel := range extra {
			if !existing[channel] {
				added = append(added, channel)
			}
		}
		sort.Strings(added)
		definition.AllowFailures = append(definition.AllowFailures, added...)
	}

	definition.InheritEnv = env.Bool(ENV_INHERIT_ENV, definition.InheritEnv)

	definition.Parallel = env.Int(ENV_PARALLEL, definition.Parallel)
	if definition.Parallel <= 0 {
		definition.Parallel = len(definition.Channels)
	}

	if definition.PrimaryChannel == "" && len(definition.Channels) > 0 {
		definition.PrimaryChannel = definition.Channels[0]
	}

	if definition.Secrets.KeyEnv == "" {
		definition.Secrets.KeyEnv = schema.DEFAULT_KEY_ENV
	}

	if definition.Notify.OnSuccess == "" {
		definition.Notify.OnSuccess = schema.NOTIFY_ALWAYS
	}
	if definition.Notify.LogTail == 0 {
		definition.Notify.LogTail = DEFAULT_LOG_TAIL
	}

	for i := range definition.Publish {
		if definition.Publish[i].Kind == "" {
			definition.Publish[i].Kind = schema.PUBLISH_KIND_COMMAND
		}
	}
}

// Validate reports every problem of the document at once.
func Validate(definition *schema.PipelineDefinition) error {
	var errs []error
	fail := func(format string, a ...any) {
		errs = append(errs, fmt.Errorf(format, a...))
	}

	if len(definition.Channels) == 0 {
		fail("at least one channel is required")
	}
	channels := make(map[string]bool, len(definition.Channels))
	for _, channel := range definition.Channels {
		if channel == "" {
			fail("channel names must not be empty")
			continue
		}
		if channels[channel] {
			fail("duplicate channel \"%s\"", channel)
		}
		channels[channel] = true
	}
	for _, channel := range definition.AllowFailures {
		if !channels[channel] {
			fail("allow failure channel \"%s\" is not a declared channel", channel)
		}
	}
	if definition.PrimaryChannel != "" && !channels[definition.PrimaryChannel] {
		fail("primary channel \"%s\" is not a declared channel", definition.PrimaryChannel)
	}

	secrets := definition.Secrets.Values
	checkSecrets := func(owner string, names []string) {
		for _, name := range names {
			if _, ok := secrets[name]; !ok {
				fail("%s requires undeclared secret \"%s\"", owner, name)
			}
		}
	}
	if definition.Secrets.KeyHash != "" {
		if err := crypto.ValidateKeyHash(definition.Secrets.KeyHash); err != nil {
			fail("invalid secrets key hash - %s", err)
		}
	}

	if len(definition.Stages) == 0 {
		fail("at least one stage is required")
	}
	stages := make(map[string]bool, len(definition.Stages))
	for i, stage := range definition.Stages {
		owner := fmt.Sprintf("stage %d", i+1)
		if stage.Name == "" {
			fail("%s has no name", owner)
		} else {
			owner = fmt.Sprintf("stage \"%s\"", stage.Name)
			if stages[stage.Name] {
				fail("duplicate stage \"%s\"", stage.Name)
			}
			stages[stage.Name] = true
		}
		if len(stage.Commands) == 0 {
			fail("%s has no commands", owner)
		}
		if stage.Timeout < 0 {
			fail("%s has a negative timeout", owner)
		}
		checkSecrets(owner, stage.Secrets)
	}

	actions := make(map[string]bool, len(definition.Publish))
	for i, action := range definition.Publish {
		owner := fmt.Sprintf("publish action %d", i+1)
		if action.Name == "" {
			fail("%s has no name", owner)
		} else {
			owner = fmt.Sprintf("publish action \"%s\"", action.Name)
			if actions[action.Name] {
				fail("duplicate publish action \"%s\"", action.Name)
			}
			actions[action.Name] = true
		}

		switch action.Kind {
		case schema.PUBLISH_KIND_COMMAND:
			if len(action.Commands) == 0 {
				fail("%s has no commands", owner)
			}
		case schema.PUBLISH_KIND_UPLOAD:
			if action.URL == "" || action.File == "" {
				fail("%s requires url and file", owner)
			}
		default:
			fail("%s has unknown kind \"%s\"", owner, action.Kind)
		}

		checkSecrets(owner, action.RequiredSecrets())
		if err := conditions.Validate(action.When); err != nil {
			fail("%s - %s", owner, err)
		}
	}

	notify := definition.Notify
	switch notify.OnSuccess {
	case schema.NOTIFY_ALWAYS, schema.NOTIFY_NEVER:
	default:
		fail("notify onSuccess must be \"%s\" or \"%s\" but is \"%s\"", schema.NOTIFY_ALWAYS, schema.NOTIFY_NEVER, notify.OnSuccess)
	}
	if notify.Webhook != nil {
		if notify.Webhook.URL == "" {
			fail("notify webhook requires a url")
		}
		if notify.Webhook.TokenSecret != "" {
			checkSecrets("notify webhook", []string{notify.Webhook.TokenSecret})
		}
	}
	if notify.Email != nil {
		if notify.Email.Host == "" || notify.Email.From == "" || len(notify.Email.To) == 0 {
			fail("notify email requires host, from and to")
		}
		if notify.Email.PasswordSecret != "" {
			checkSecrets("notify email", []string{notify.Email.PasswordSecret})
		}
	}
	if notify.NATS != nil && (notify.NATS.URL == "" || notify.NATS.Subject == "") {
		fail("notify nats requires url and subject")
	}

	return errors.Join(errs...)
}
