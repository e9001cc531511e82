package main

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/eeg-findings-server/internal/app"
	"github.com/eeg-findings-server/internal/config"
	"github.com/eeg-findings-server/internal/logging"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	appOnce sync.Once
	app     *app.App
	appErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

// ensureApp loads configuration and opens the store once per invocation. Vision is never
// initialized; the CLI only reads and writes history.
func (c *commandContext) ensureApp(ctx context.Context) (*app.App, error) {
	c.appOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		if path == "" {
			path = os.Getenv("EEG_CONFIG_FILE")
		}
		manager, err := config.NewManagerFromFile(path)
		if err != nil {
			c.appErr = err
			return
		}
		c.app, c.appErr = app.New(ctx, manager, app.Options{SkipVision: true, LogOutput: "stderr"})
	})
	return c.app, c.appErr
}

func (c *commandContext) close() {
	if c.app != nil {
		c.app.Close()
		c.app = nil
	}
}

// wantJSON reports whether output goes out as JSON: on request, or when stdout is not a
// terminal.
func (c *commandContext) wantJSON(cmd *cobra.Command) bool {
	if c.jsonFlag != nil && *c.jsonFlag {
		return true
	}
	return !logging.IsTerminal(cmd.OutOrStdout())
}
