// Command pathmesh-server runs one group server process: it owns a set of
// regions, serves shortest-path requests for them, and forwards requests
// it can't fully answer to whichever server owns the next region.
//
// Grounded on cmd/qumo-relay/main.go's flag/signal/shutdown skeleton.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/okdaichi/pathmesh/internal/bootstrap"
	"github.com/okdaichi/pathmesh/internal/config"
	"github.com/okdaichi/pathmesh/internal/version"
)

func main() {
	var printVersion = flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *printVersion {
		log.Println(version.Full())
		return
	}

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logLevel := slog.LevelInfo
	if err := logLevel.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	// instanceID distinguishes this process's log lines from another
	// instance of the same group restarted in place; it is never part of
	// the wire protocol.
	instanceID := uuid.NewString()
	log = log.With("server_id", cfg.GroupID, "instance_id", instanceID)

	log.Info("starting pathmesh-server", "version", version.Version())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := bootstrap.Run(ctx, cfg, log); err != nil {
		log.Error("fatal bootstrap error", "error", err)
		os.Exit(1)
	}

	log.Info("stopped")
}
