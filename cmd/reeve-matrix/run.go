package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/reeveci/reeve-matrix/config"
	"github.com/reeveci/reeve-matrix/exe"
	"github.com/reeveci/reeve-matrix/logs"
	"github.com/reeveci/reeve-matrix/metrics"
	"github.com/reeveci/reeve-matrix/runner"
)

type RunCmd struct {
	Dir         string `short:"C" help:"Working directory of stages" default:"." type:"existingdir"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics in textfile format to this path" type:"path"`
}

func (cmd *RunCmd) Run(global *Global, root *CLI) error {
	logger := global.Logger

	definition, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	key, err := lookupKey(definition.Secrets.KeyEnv, root.EnvFile, cmd.Dir)
	if err != nil {
		return err
	}

	var recorder *metrics.PrometheusRecorder
	opts := runner.Options{
		Dir:       cmd.Dir,
		Key:       key,
		Output:    os.Stdout,
		Decorator: logs.NewDefaultDecorator(lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Render("%s")),
		Logger:    logger,
	}
	if cmd.MetricsFile != "" {
		recorder = metrics.NewPrometheusRecorder(nil)
		opts.Metrics = recorder
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := runner.New(definition, opts).Run(ctx)
	if err != nil {
		return err
	}

	fmt.Fprint(os.Stdout, "\n"+runner.Summary(report))

	if recorder != nil {
		if err := recorder.WriteTextfile(cmd.MetricsFile); err != nil {
			logger.Warn("cannot write metrics", "path", cmd.MetricsFile, "error", err)
		}
	}

	if code := report.ExitCode(); code != 0 {
		return exitError{code: code}
	}
	return nil
}

// lookupKey reads the decryption key from the given dotenv files, or .env in dir, falling
// back to the process environment. The key never enters the process environment.
func lookupKey(keyEnv string, envFiles []string, dir string) (string, error) {
	if len(envFiles) == 0 {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			envFiles = []string{candidate}
		}
	}

	if len(envFiles) > 0 {
		values, err := godotenv.Read(envFiles...)
		if err != nil {
			return "", fmt.Errorf("cannot read env file - %w", err)
		}
		if key := exe.Map(values).String(keyEnv, ""); key != "" {
			return key, nil
		}
	}

	return exe.OS().String(keyEnv, ""), nil
}

var errNoKey = errors.New("no decryption key found")
