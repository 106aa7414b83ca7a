package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/config"
	"github.com/woxQAQ/jniproxy/internal/dispatch"
	"github.com/woxQAQ/jniproxy/internal/host"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	list := flag.Bool("list", false, "Print the JNI function table and exit")
	run := flag.String("run", "", "Run only the guest of this bundle (default: all guests)")
	flag.Parse()

	if *list {
		if err := printTable(os.Stdout, dispatch.Default()); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	var logger *zap.Logger
	if cfg.LogLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	} else {
		pc := zap.NewProductionConfig()
		if lvl, err := zap.ParseAtomicLevel(cfg.LogLevel); err == nil {
			pc.Level = lvl
		}
		logger, _ = pc.Build()
	}
	defer logger.Sync()

	logger.Info("Starting jniproxy",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("date", date),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	h, err := host.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create host", zap.Error(err))
	}
	defer func() {
		if err := h.Close(context.Background()); err != nil {
			logger.Error("Shutdown failed", zap.Error(err))
		}
	}()

	if *run != "" {
		err = h.Run(ctx, *run)
	} else {
		err = h.RunAll(ctx)
	}
	if err != nil {
		logger.Error("Guest failed", zap.Error(err))
		return
	}

	logger.Info("jniproxy finished")
}

// printTable writes one line per slot: index, name, kind and wasm signature.
func printTable(w io.Writer, t *dispatch.Table) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tNAME\tKIND\tSIGNATURE")
	t.Each(func(e *dispatch.Entry) bool {
		switch {
		case e.Reserved():
			fmt.Fprintf(tw, "%d\t-\treserved\t\n", e.Index)
		case !e.Implemented():
			fmt.Fprintf(tw, "%d\t%s\tunimplemented\t\n", e.Index, e.Name)
		default:
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Index, e.Name, e.Op, signature(e))
		}
		return true
	})
	return tw.Flush()
}

func signature(e *dispatch.Entry) string {
	params := make([]string, len(e.Params))
	for i, p := range e.Params {
		params[i] = api.ValueTypeName(p)
	}
	s := "(" + strings.Join(params, ", ") + ")"
	if len(e.Results) > 0 {
		s += " " + api.ValueTypeName(e.Results[0])
	}
	return s
}
