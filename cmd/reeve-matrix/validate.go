package main

import (
	"fmt"
	"io"
	"os"

	"github.com/reeveci/reeve-matrix/config"
	"github.com/reeveci/reeve-matrix/matrix"
	"github.com/reeveci/reeve-matrix/schema"
)

type ValidateCmd struct{}

func (cmd *ValidateCmd) Run(global *Global, root *CLI) error {
	definition, err := config.Load(root.Config)
	if err != nil {
		return err
	}

	describe(os.Stdout, root.Config, definition)
	return nil
}

func describe(w io.Writer, path string, definition *schema.PipelineDefinition) {
	runs := matrix.Expand(definition.Channels, definition.AllowFailures)
	fmt.Fprintf(w, "%s: %d runs, %d stages, %d publish actions (primary channel %s)\n",
		path, len(runs), len(definition.Stages), len(definition.Publish), definition.PrimaryChannel)
	for _, run := range runs {
		fmt.Fprintf(w, "  %s\n", run)
	}

	if primary, ok := matrix.Find(runs, definition.PrimaryChannel); ok && primary.AllowFailure && len(definition.Publish) > 0 {
		fmt.Fprintf(w, "note: %s may fail; publishing only happens when it succeeds\n", primary.Channel)
	}
}
