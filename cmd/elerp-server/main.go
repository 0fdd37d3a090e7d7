package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/minedient/elerp/internal/config"
	"github.com/minedient/elerp/internal/console"
	"github.com/minedient/elerp/internal/discovery"
	"github.com/minedient/elerp/internal/logging"
	"github.com/minedient/elerp/internal/resources"
	"github.com/minedient/elerp/internal/server"
	"github.com/minedient/elerp/internal/store"
)

func main() {
	configPath := flag.String("config", "elerp-server.toml", "path to the server config file")
	development := flag.Bool("development", false, "use the development port pair and debug logging")
	showVersion := flag.Bool("version", false, "print the server version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(server.Version)
		return
	}

	log := logging.Init("elerp-server", *development)

	if err := run(log, *configPath, *development); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func run(log zerolog.Logger, configPath string, development bool) error {
	cfg, err := config.LoadServerConfig(configPath)
	if err != nil {
		return err
	}
	if development {
		cfg.UseDevelopmentPorts()
		log.Info().Msg("running in development mode")
	}

	res, err := resources.Load(cfg.ResourcePath)
	if err != nil {
		return err
	}
	log.Info().Str("path", cfg.ResourcePath).Msg("resources loaded")

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		return err
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := st.EnsureSchema(ctx); err != nil {
		return err
	}

	localIP, err := discovery.LocalIP()
	if err != nil {
		return err
	}
	responder, err := discovery.NewResponder(cfg.UDPPort, localIP, log)
	if err != nil {
		return err
	}
	srv, err := server.New(cfg, st, res, log)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := responder.Serve(ctx); err != nil {
			log.Error().Err(err).Msg("discovery responder failed")
		}
	}()
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("tcp server failed")
		}
	}()
	log.Info().
		Str("ip", localIP).
		Int("udp", cfg.UDPPort).
		Int("tcp", cfg.TCPPort).
		Msg("server started")

	console.Run(ctx, os.Stdin, os.Stdout, console.Deps{
		Store:  st,
		Server: srv,
		Stop:   stop,
		Log:    log,
	})

	stop()
	wg.Wait()
	return nil
}
