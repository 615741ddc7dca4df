package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"gifwright/internal/config"
	"gifwright/internal/filecache"
	"gifwright/internal/learning"
	"gifwright/internal/logging"
	"gifwright/internal/metrics"
	"gifwright/internal/workflow"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	caches *filecache.Set
	model  *learning.Model
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
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

func (c *commandContext) wantJSON() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		logger, err := logging.NewFromConfig(c.config)
		if err != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
		logging.PruneLogs(logger, c.config)
	})
	return c.logger
}

func (c *commandContext) openCaches() (*filecache.Set, error) {
	if c.caches != nil {
		return c.caches, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	caches, err := filecache.OpenSet(cfg, c.log())
	if err != nil {
		return nil, fmt.Errorf("open caches: %w", err)
	}
	c.caches = caches
	return caches, nil
}

// openModel returns nil when learning is disabled.
func (c *commandContext) openModel(ctx context.Context, force bool) (*learning.Model, error) {
	if c.model != nil {
		return c.model, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.Learning.Enabled && !force {
		return nil, nil
	}
	model, err := learning.Open(ctx, cfg.ModelPath(), learning.ParamsFromConfig(cfg.Learning), c.log())
	if err != nil {
		return nil, fmt.Errorf("open learning model: %w", err)
	}
	c.model = model
	return model, nil
}

func (c *commandContext) newRunner(ctx context.Context, recorder *metrics.Recorder) (*workflow.Runner, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	caches, err := c.openCaches()
	if err != nil {
		return nil, err
	}
	model, err := c.openModel(ctx, false)
	if err != nil {
		return nil, err
	}
	return workflow.NewRunner(cfg, workflow.Options{
		Caches:   caches,
		Model:    model,
		Recorder: recorder,
		Logger:   c.log(),
	})
}

func (c *commandContext) close() error {
	var errs []error
	if c.caches != nil {
		errs = append(errs, c.caches.Close())
		c.caches = nil
	}
	if c.model != nil {
		errs = append(errs, c.model.Close())
		c.model = nil
	}
	return errors.Join(errs...)
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
