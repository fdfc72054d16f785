package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"sentinel/devserver"
	"sentinel/logger"
)

var opts struct {
	Listen string `long:"listen" env:"SENTINEL_DEV_LISTEN" default:"127.0.0.1:8787" description:"address to listen on"`
	Token  string `long:"token" env:"SENTINEL_DEV_TOKEN" description:"bearer token required on api routes"`
	SelfID string `long:"self-id" env:"SENTINEL_DEV_SELF_ID" default:"1" description:"directory id of the local operator"`
}

var Revision = "dev"

func main() {
	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger()
	log.Info("starting dev backend", "revision", Revision, "listen", opts.Listen)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	handler := devserver.NewServer(devserver.Config{
		Log:    log,
		Token:  opts.Token,
		SelfID: opts.SelfID,
		Users: []devserver.User{
			{ID: "2", FullName: "Raven Six", Email: "raven@unit.example", Handle: "raven"},
			{ID: "3", FullName: "Archer Two", Email: "archer@unit.example", Handle: "archer"},
			{ID: "4", FullName: "Ghost Actual", Email: "ghost@unit.example", Handle: "ghost"},
		},
	})

	server := &http.Server{
		Addr:    opts.Listen,
		Handler: handler,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serving http", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("stopping dev backend")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutting down http server", "error", err)
		os.Exit(1)
	}
}
