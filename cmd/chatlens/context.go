package main

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"chatlens/internal/chatlogs"
	"chatlens/internal/config"
	"chatlens/internal/handle"
	"chatlens/internal/history"
	"chatlens/internal/logging"
	"chatlens/internal/models"
	"chatlens/internal/session"
	"chatlens/internal/transport"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	sessionOnce sync.Once
	session     *session.Manager
	sessionErr  error
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

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

func (c *commandContext) sessionManager() (*session.Manager, error) {
	c.sessionOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.sessionErr = err
			return
		}
		logger, err := c.ensureLogger()
		if err != nil {
			c.sessionErr = err
			return
		}
		c.session, c.sessionErr = session.NewManager(
			cfg.Server.BaseURL,
			cfg.Paths.StateDir,
			session.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
			session.WithLogger(logger),
		)
	})
	return c.session, c.sessionErr
}

func (c *commandContext) transportClient() (*transport.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	mgr, err := c.sessionManager()
	if err != nil {
		return nil, err
	}
	return transport.New(cfg.Server.BaseURL, mgr), nil
}

func (c *commandContext) chatlogsClient() (*chatlogs.Client, error) {
	tc, err := c.transportClient()
	if err != nil {
		return nil, err
	}
	return chatlogs.NewClient(tc), nil
}

func (c *commandContext) modelsClient() (*models.Client, error) {
	tc, err := c.transportClient()
	if err != nil {
		return nil, err
	}
	return models.NewClient(tc), nil
}

func (c *commandContext) handleStore() (*handle.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return handle.NewStore(cfg.Paths.StateDir), nil
}

func (c *commandContext) historyStore() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Paths.StateDir)
}

func (c *commandContext) modelSelections() (*models.Selections, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return models.NewSelections(cfg.Paths.StateDir), nil
}
