package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"markerflow/internal/config"
	"markerflow/internal/logging"
	"markerflow/internal/profiles"
	"markerflow/internal/queue"
	"markerflow/internal/settings"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce  sync.Once
	logger      *slog.Logger
	closeLogger func() error

	settingsOnce sync.Once
	settings     *settings.Store
	settingsErr  error

	historyOnce sync.Once
	history     *queue.Store
	historyErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerValue builds the process logger once. Failures fall back to a
// stderr logger so commands keep working with a broken log directory.
func (c *commandContext) loggerValue() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, closer, err := logging.NewFromConfig(c.configValue())
		if err != nil {
			logger, closer, _ = logging.New(logging.Options{Level: "info", Format: "console"})
			logger.Warn("log file unavailable", logging.Error(err))
		}
		c.logger = logger
		c.closeLogger = closer
	})
	return c.logger
}

func (c *commandContext) settingsStore() (*settings.Store, error) {
	c.settingsOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.settingsErr = err
			return
		}
		c.settings, c.settingsErr = settings.Open(cfg.ConfigurationsDir(), c.loggerValue())
	})
	return c.settings, c.settingsErr
}

func (c *commandContext) profileStore() (*profiles.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return profiles.NewStore(cfg.ProfilesDir()), nil
}

func (c *commandContext) historyStore() (*queue.Store, error) {
	c.historyOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.historyErr = err
			return
		}
		store, err := queue.Open(cfg.QueueDBPath())
		if err != nil {
			c.historyErr = fmt.Errorf("open upload history: %w", err)
			return
		}
		c.history = store
	})
	return c.history, c.historyErr
}

func (c *commandContext) close() error {
	if c.history != nil {
		_ = c.history.Close()
	}
	if c.closeLogger != nil {
		return c.closeLogger()
	}
	return nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
