package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"paimonWriter/src/config"

	"github.com/BurntSushi/toml"
	"github.com/cznic/mathutil"
)

var (
	operation    = flag.String("op", "write", "write/show/scan/drop, default is write")
	sqlPath      = flag.String("sql", "", "CREATE TABLE file used when the table does not exist")
	cfgPath      = flag.String("cfg", "", "config path")
	threads      = flag.Int("threads", 4, "threads used to read data files")
	progress     = flag.Duration("progress", time.Second, "progress refresh interval, 0 disables the progress bar")
	logLevel     = flag.String("log-level", "info", "debug/info/warn/error")
	fromSnapshot = flag.Int64("from-snapshot", -1, "scan: read snapshots after this id")
	toSnapshot   = flag.Int64("to-snapshot", 0, "scan: read up to this snapshot id")
	limit        = flag.Int("limit", 100, "scan: print at most this many rows, 0 prints all")
)

func usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage:\n  %s [flags] %s\n", os.Args[0], config.Usage)
	fmt.Fprintf(out, "  %s -op show|scan|drop [flags] <rootPath> <database> <table>\n\nFlags:\n", os.Args[0])
	flag.PrintDefaults()
}

func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}

func main() {
	flag.Usage = usage
	flag.Parse()

	logger, err := newLogger(*logLevel)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	slog.SetDefault(logger)

	var cfg config.Config
	if *cfgPath != "" {
		if _, err := toml.DecodeFile(*cfgPath, &cfg); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *sqlPath != "" {
		cfg.Table.SQLPath = *sqlPath
	}

	op := strings.ToLower(*operation)
	if op == "write" {
		err = config.FromArgs(&cfg, flag.Args())
	} else {
		err = config.FromTableArgs(&cfg, flag.Args())
	}
	if err != nil {
		flag.Usage()
		log.Fatalf("%v", err)
	}
	if err := config.Normalize(&cfg); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	if err := config.Validate(&cfg); err != nil {
		log.Fatalf("%v", err)
	}

	readThreads := mathutil.Clamp(*threads, 1, 64)
	ctx := context.Background()
	switch op {
	case "write":
		if err := WriteRounds(ctx, &cfg, *progress, logger); err != nil {
			log.Fatalf("Failed to write table: %v", err)
		}
	case "show":
		if err := ShowTable(ctx, &cfg, logger); err != nil {
			log.Fatalf("Failed to show table: %v", err)
		}
	case "scan":
		if err := ScanTable(ctx, &cfg, *fromSnapshot, *toSnapshot, readThreads, *limit, logger); err != nil {
			log.Fatalf("Failed to scan table: %v", err)
		}
	case "drop":
		if err := DropTable(ctx, &cfg, logger); err != nil {
			log.Fatalf("Failed to drop table: %v", err)
		}
	default:
		log.Fatalf("Unknown operation: %s", *operation)
	}
}
