package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"
	"github.com/reeveci/reeve-matrix/pipeline"
	"github.com/reeveci/reeve-matrix/plugin"
	"github.com/reeveci/reeve-matrix/schema"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// LogSink writes the outcome to the runner log.
type LogSink struct {
	Logger hclog.Logger
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Send(ctx context.Context, notification schema.Notification) error {
	report := notification.Report
	level := hclog.Info
	if !report.Status.Passed() {
		level = hclog.Error
	}
	s.Logger.Log(level, "pipeline finished", "id", report.ID, "status", report.Status, "runs", len(report.Runs))
	for _, run := range report.Runs {
		args := []interface{}{"channel", run.Run.Channel, "status", run.Status}
		if stage, ok := run.FailedStage(); ok {
			args = append(args, "failed_stage", stage.Stage)
		}
		s.Logger.Log(level, "run outcome", args...)
	}
	return nil
}

// WebhookSink posts the notification as JSON.
type WebhookSink struct {
	URL         string
	TokenSecret string
	Secrets     pipeline.SecretSource
	Client      *http.Client
}

func (s *WebhookSink) Name() string {
	return "webhook"
}

func (s *WebhookSink) Send(ctx context.Context, notification schema.Notification) error {
	body, err := json.Marshal(notification)
	if err != nil {
		return err
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	request.Header.Set("Content-Type", "application/json")

	if s.TokenSecret != "" {
		token, err := acquire(s.Secrets, s.TokenSecret)
		if err != nil {
			return err
		}
		request.Header.Set("Authorization", "Bearer "+token)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("webhook responded with status %d", response.StatusCode)
	}
	return nil
}

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailSink sends an HTML mail rendered from the markdown summary.
type EmailSink struct {
	Config   schema.EmailConfig
	Secrets  pipeline.SecretSource
	SendMail SendMailFunc
}

func (s *EmailSink) Name() string {
	return "email"
}

func (s *EmailSink) Send(ctx context.Context, notification schema.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	message, err := RenderEmail(s.Config.From, s.Config.To, notification)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.Config.Username != "" {
		password := ""
		if s.Config.PasswordSecret != "" {
			password, err = acquire(s.Secrets, s.Config.PasswordSecret)
			if err != nil {
				return err
			}
		}
		auth = smtp.PlainAuth("", s.Config.Username, password, s.Config.Host)
	}

	port := s.Config.Port
	if port == 0 {
		port = 25
	}
	send := s.SendMail
	if send == nil {
		send = smtp.SendMail
	}
	return send(net.JoinHostPort(s.Config.Host, strconv.Itoa(port)), auth, s.Config.From, s.Config.To, message)
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderEmail builds a complete RFC 5322 message with an HTML body.
func RenderEmail(from string, to []string, notification schema.Notification) ([]byte, error) {
	var html bytes.Buffer
	if err := markdown.Convert([]byte(notification.Summary), &html); err != nil {
		return nil, err
	}
	channels := make([]string, 0, len(notification.Tails))
	for channel := range notification.Tails {
		channels = append(channels, channel)
	}
	sort.Strings(channels)
	for _, channel := range channels {
		html.WriteString("<h2>")
		escapeHTML(&html, channel)
		html.WriteString("</h2>\n<pre>")
		escapeHTML(&html, notification.Tails[channel])
		html.WriteString("</pre>\n")
	}

	var message bytes.Buffer
	fmt.Fprintf(&message, "From: %s\r\n", from)
	fmt.Fprintf(&message, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&message, "Subject: %s\r\n", notification.Subject)
	fmt.Fprintf(&message, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	message.WriteString("MIME-Version: 1.0\r\n")
	message.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.Write(html.Bytes())
	return message.Bytes(), nil
}

func escapeHTML(w *bytes.Buffer, s string) {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	_, _ = replacer.WriteString(w, s)
}

// NATSSink publishes the notification as JSON to a subject.
type NATSSink struct {
	URL     string
	Subject string
}

func (s *NATSSink) Name() string {
	return "nats"
}

func (s *NATSSink) Send(ctx context.Context, notification schema.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := 10 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return context.DeadlineExceeded
		}
	}

	conn, err := nats.Connect(s.URL, nats.Name("reeve-matrix"), nats.Timeout(timeout))
	if err != nil {
		return err
	}
	defer conn.Close()

	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	if err := conn.Publish(s.Subject, data); err != nil {
		return err
	}
	return conn.FlushTimeout(timeout)
}

// PluginSink launches a notifier plugin binary for every notification.
type PluginSink struct {
	Path   string
	Env    []string
	Logger hclog.Logger
}

func (s *PluginSink) Name() string {
	return "plugin:" + filepath.Base(s.Path)
}

func (s *PluginSink) Send(ctx context.Context, notification schema.Notification) error {
	client, err := plugin.Launch(s.Path, s.Env, s.Logger)
	if err != nil {
		return err
	}
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.Notify(notification)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func acquire(secrets pipeline.SecretSource, name string) (string, error) {
	if secrets == nil {
		return "", schema.ERROR_UNAVAILABLE
	}
	env, err := secrets.Acquire(name)
	if err != nil {
		return "", err
	}
	return env[name].Value, nil
}
