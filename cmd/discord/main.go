package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/keshon/nuget-tracker/internal/app"
	"github.com/keshon/nuget-tracker/internal/config"
	"github.com/keshon/nuget-tracker/internal/discord"
	"github.com/keshon/nuget-tracker/internal/logging"
	"github.com/keshon/nuget-tracker/pkg/cmd/dispatch"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid configuration")
	}
	log, closer := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile})
	defer closer.Close()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("discord bot error")
		os.Exit(1)
	}
	log.Info().Msg("discord bot exited cleanly")
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Msg("starting nuget tracker bot")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(cfg, log, dispatch.WithResultFunc(discord.Renderer(log)))
	if err != nil {
		return err
	}
	defer a.Close()

	bot, err := discord.New(discord.Options{
		Config:     cfg,
		Dispatcher: a.Dispatcher,
		Search:     a.NuGet,
		Packages:   a.Store,
		Log:        log,
	})
	if err != nil {
		return err
	}
	a.SetLatency(bot.Latency)

	if err := a.Tracker.Start(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Stringer("signal", s).Msg("shutting down")
		cancel()
		return <-errCh
	case err := <-errCh:
		return err
	}
}
