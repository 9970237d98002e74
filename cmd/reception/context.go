package main

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"reception-agent-go/internal/auth"
	"reception-agent-go/internal/config"
	"reception-agent-go/internal/dedup"
	"reception-agent-go/internal/extractor"
	"reception-agent-go/internal/logger"
	"reception-agent-go/internal/pipeline"
	"reception-agent-go/internal/processor"
	"reception-agent-go/internal/store"
	"reception-agent-go/internal/transcription"
)

var errPasswordRequired = errors.New("--password is required (or set RECEPTION_PASSWORD)")

type commandContext struct {
	configFlag   *string
	passwordFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	logOut io.Writer
}

func newCommandContext(configFlag, passwordFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		passwordFlag: passwordFlag,
		logOut:       os.Stderr,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = &cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *logger.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return logger.NewWithOutput("local", "info", c.logOut)
	}
	return logger.NewWithOutput(cfg.App.Env, cfg.App.LogLevel, c.logOut)
}

// authorize checks --password against the admin credential.
func (c *commandContext) authorize() error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	password := ""
	if c.passwordFlag != nil {
		password = *c.passwordFlag
	}
	if password == "" {
		password = os.Getenv("RECEPTION_PASSWORD")
	}
	if password == "" {
		return errPasswordRequired
	}
	gate, err := auth.NewGate(cfg.Auth)
	if err != nil {
		return err
	}
	return gate.CheckPassword(password)
}

// withService opens the store, wires the pipeline, and hands both to fn.
func (c *commandContext) withService(ctx context.Context, fn func(*processor.Service, *store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	log := c.logger()
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(newService(*cfg, st, log), st)
}

func newService(cfg config.Config, st *store.Store, log *logger.Logger) *processor.Service {
	tr := transcription.NewClient(transcription.Config{
		URL:     cfg.Transcription.URL,
		APIKey:  cfg.Transcription.APIKey,
		Model:   cfg.Transcription.Model,
		Timeout: cfg.Transcription.Timeout.Duration,
		Retries: cfg.Transcription.Retries,
		Mock:    cfg.Transcription.Mock,
	}, log)
	ex := extractor.NewClient(extractor.Config{
		URL:          cfg.LLM.URL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		Timeout:      cfg.LLM.Timeout.Duration,
		MaxRetryTime: cfg.LLM.MaxRetryTime.Duration,
		Mock:         cfg.LLM.Mock,
	}, log)
	det := dedup.NewDetector(cfg.Dedup.Threshold, dedup.Window{
		Size:   cfg.Dedup.WindowSize,
		MaxAge: cfg.Dedup.MaxAge.Duration,
	})
	orch := pipeline.New(tr, ex, st, det, log)
	return processor.New(orch, st, cfg.Sessions.TTL.Duration, log)
}

func skipAuth(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipAuth"] == "true" {
			return true
		}
	}
	return false
}
