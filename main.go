package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"
)

var version = "dev"

var (
	configFlag   string
	logLevelFlag string
	monitorFlag  bool
	versionFlag  bool
)

func init() {
	flag.StringVarP(&configFlag, "config", "c", "", "Path to a config file (default $XDG_CONFIG_HOME/mediafetcher/config.yaml)")
	flag.StringVar(&logLevelFlag, "log-level", "", "Override log.level (debug, info, warn, error)")
	flag.BoolVarP(&monitorFlag, "monitor", "m", false, "Show an interactive now-playing view instead of the stdin/stdout bridge")
	flag.BoolVarP(&versionFlag, "version", "v", false, "Print version and exit")
}

func main() {
	flag.Parse()

	if versionFlag {
		fmt.Println("mediafetcher", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mediafetcher: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	log, level := newLogger(config.Get().Log.Level)
	defer log.Sync()

	initConfig(configFlag, func(cfg Config) {
		if logLevelFlag == "" {
			level.SetLevel(parseLogLevel(cfg.Log.Level))
		}
	})
	if logLevelFlag != "" {
		level.SetLevel(parseLogLevel(logLevelFlag))
	} else {
		level.SetLevel(parseLogLevel(config.Get().Log.Level))
	}

	fetcher, err := newPlatformFetcher(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fetcher.Init(ctx); err != nil {
		return err
	}
	log.Debug("media session backend ready")

	if monitorFlag {
		return runMonitor(ctx, fetcher)
	}

	bridge := newBridge(fetcher, newLineWriter(os.Stdout), log, config)
	err = bridge.Run(ctx, os.Stdin)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
