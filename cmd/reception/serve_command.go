package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"reception-agent-go/internal/auth"
	"reception-agent-go/internal/httpapi"
	"reception-agent-go/internal/store"
)

const sweepInterval = 5 * time.Minute

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:         "serve",
		Short:       "Run the reviewer HTTP API",
		Annotations: map[string]string{"skipAuth": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log := ctx.logger().Component("server")

			rootCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.UsesDefaultPassword() {
				log.Warn("using the default admin password; set APP_ADMIN_PASSWORD")
			}
			if cfg.App.Env == "production" {
				gin.SetMode(gin.ReleaseMode)
			}

			gate, err := auth.NewGate(cfg.Auth)
			if err != nil {
				return err
			}
			st, err := store.Open(rootCtx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := newService(*cfg, st, ctx.logger())
			go svc.RunJanitor(rootCtx, sweepInterval)

			router := httpapi.NewRouter(httpapi.Handlers{Gate: gate, Sessions: svc, DB: st}, ctx.logger())
			srv := &http.Server{
				Addr:              cfg.HTTPAddr(),
				Handler:           router,
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       60 * time.Second,
				// A single upload runs transcription and extraction inline.
				WriteTimeout: cfg.Transcription.Timeout.Duration + cfg.LLM.MaxRetryTime.Duration + 30*time.Second,
				IdleTimeout:  120 * time.Second,
			}

			go func() {
				log.WithField("addr", srv.Addr).WithField("env", cfg.App.Env).
					WithField("db_driver", cfg.Database.Driver).Info("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.WithError(err).Error("http server failed")
					stop()
				}
			}()

			<-rootCtx.Done()
			log.Info("shutdown initiated")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.WithError(err).Error("http shutdown failed")
				return err
			}
			return nil
		},
	}
}
