package schema

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

const ENV_PREFIX = "env "

const DEFAULT_SHELL = "sh -c"
const DEFAULT_KEY_ENV = "REEVE_MATRIX_KEY"
const CHANNEL_ENV = "MATRIX_CHANNEL"
const STAGE_ENV = "MATRIX_STAGE"

const PUBLISH_KIND_COMMAND = "command"
const PUBLISH_KIND_UPLOAD = "upload"

const NOTIFY_ALWAYS = "always"
const NOTIFY_NEVER = "never"

// PipelineDefinition is the declarative document driving one invocation.
type PipelineDefinition struct {
	Name           string            `json:"name" yaml:"name"`
	Channels       []string          `json:"channels" yaml:"channels"`
	AllowFailures  []string          `json:"allowFailures" yaml:"allowFailures"`
	PrimaryChannel string            `json:"primaryChannel" yaml:"primaryChannel"`
	Parallel       int               `json:"parallel" yaml:"parallel"`
	Shell          string            `json:"shell" yaml:"shell"`
	InheritEnv     bool              `json:"inheritEnv" yaml:"inheritEnv"`
	Env            map[string]string `json:"env" yaml:"env"`
	Stages         []Stage           `json:"stages" yaml:"stages"`
	Secrets        SecretsConfig     `json:"secrets" yaml:"secrets"`
	Publish        []PublishAction   `json:"publish" yaml:"publish"`
	Notify         NotifyConfig      `json:"notify" yaml:"notify"`
}

// Stage is shared read-only by every run configuration.
type Stage struct {
	Name     string   `json:"name" yaml:"name"`
	Commands []string `json:"commands" yaml:"commands"`
	Secrets  []string `json:"secrets" yaml:"secrets"`
	Timeout  Duration `json:"timeout" yaml:"timeout"`
}

type SecretsConfig struct {
	// Name of the environment variable holding the decryption key.
	KeyEnv string `json:"keyEnv" yaml:"keyEnv"`
	// Optional argon2id hash of the decryption key.
	KeyHash string            `json:"keyHash" yaml:"keyHash"`
	Values  map[string]string `json:"values" yaml:"values"`
}

type PublishAction struct {
	Name     string               `json:"name" yaml:"name"`
	Kind     string               `json:"kind" yaml:"kind"`
	Commands []string             `json:"commands" yaml:"commands"`
	Secrets  []string             `json:"secrets" yaml:"secrets"`
	When     map[string]Condition `json:"when" yaml:"when"`
	Timeout  Duration             `json:"timeout" yaml:"timeout"`

	// upload
	URL         string `json:"url" yaml:"url"`
	File        string `json:"file" yaml:"file"`
	TokenSecret string `json:"tokenSecret" yaml:"tokenSecret"`
	ContentType string `json:"contentType" yaml:"contentType"`
}

// RequiredSecrets lists every secret the action needs, including the upload token.
func (a PublishAction) RequiredSecrets() []string {
	if a.TokenSecret == "" {
		return a.Secrets
	}
	result := make([]string, 0, len(a.Secrets)+1)
	result = append(result, a.Secrets...)
	return append(result, a.TokenSecret)
}

type NotifyConfig struct {
	OnSuccess string         `json:"onSuccess" yaml:"onSuccess"`
	LogTail   int            `json:"logTail" yaml:"logTail"`
	Webhook   *WebhookConfig `json:"webhook" yaml:"webhook"`
	Email     *EmailConfig   `json:"email" yaml:"email"`
	NATS      *NATSConfig    `json:"nats" yaml:"nats"`
	Plugins   []string       `json:"plugins" yaml:"plugins"`
}

type WebhookConfig struct {
	URL         string `json:"url" yaml:"url"`
	TokenSecret string `json:"tokenSecret" yaml:"tokenSecret"`
}

type EmailConfig struct {
	Host           string   `json:"host" yaml:"host"`
	Port           int      `json:"port" yaml:"port"`
	From           string   `json:"from" yaml:"from"`
	To             []string `json:"to" yaml:"to"`
	Username       string   `json:"username" yaml:"username"`
	PasswordSecret string   `json:"passwordSecret" yaml:"passwordSecret"`
}

type NATSConfig struct {
	URL     string `json:"url" yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`
}

// RunConfiguration is one expanded matrix entry.
type RunConfiguration struct {
	Index        int    `json:"index"`
	Channel      string `json:"channel"`
	AllowFailure bool   `json:"allowFailure"`
}

func (r RunConfiguration) String() string {
	if r.AllowFailure {
		return r.Channel + " (allow failure)"
	}
	return r.Channel
}

type Env struct {
	Value    string `json:"value" yaml:"value"`
	Priority uint32 `json:"priority" yaml:"priority"`
	Secret   bool   `json:"secret" yaml:"secret"`
}

type Fact []string

// Duration accepts Go duration strings ("90s", "10m") in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration \"%s\" - %s", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	if d == 0 {
		return "", nil
	}
	return time.Duration(d).String(), nil
}
