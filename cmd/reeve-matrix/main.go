package main

import (
	"errors"
	"os"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/go-hclog"
	"github.com/reeveci/reeve-matrix/schema"
)

// Global carries state shared by all commands.
type Global struct {
	Logger hclog.Logger
}

type CLI struct {
	Config  string   `short:"c" help:"Pipeline document path" default:".reeve-matrix.yml" type:"path"`
	EnvFile []string `name:"env-file" help:"Dotenv files to read the decryption key from (defaults to .env if present)" type:"path"`
	Verbose bool     `short:"v" help:"Enable debug logging"`

	Run      RunCmd      `cmd:"" default:"withargs" help:"Run the pipeline for every channel"`
	Validate ValidateCmd `cmd:"" help:"Validate the pipeline document"`
	Encrypt  EncryptCmd  `cmd:"" help:"Encrypt a secret read from stdin"`
	HashKey  HashKeyCmd  `cmd:"" name:"hash-key" help:"Print an argon2id hash of the decryption key for secrets.keyHash"`
}

// AfterApply runs after flag parsing; sets up logging once.
func (c *CLI) AfterApply(global *Global) error {
	level := hclog.Info
	if c.Verbose {
		level = hclog.Debug
	}
	global.Logger = hclog.New(&hclog.LoggerOptions{
		Name:   "reeve-matrix",
		Level:  level,
		Output: os.Stderr,
		Color:  hclog.AutoColor,
	})
	return nil
}

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return "pipeline failed"
}

func main() {
	global := &Global{Logger: hclog.NewNullLogger()}
	var cli CLI

	ctx := kong.Parse(&cli,
		kong.Name("reeve-matrix"),
		kong.Description("Run a pipeline across a matrix of toolchain channels."),
		kong.UsageOnError(),
		kong.Bind(global),
		kong.Vars{"default_key_env": schema.DEFAULT_KEY_ENV},
	)

	err := ctx.Run(&cli)
	if err == nil {
		return
	}

	var exit exitError
	if errors.As(err, &exit) {
		os.Exit(exit.code)
	}
	global.Logger.Error("command failed", "error", err)
	os.Exit(2)
}
