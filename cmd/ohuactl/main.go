package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/danmuck/ohuakv/internal/binding"
	"github.com/danmuck/ohuakv/internal/logging"
	"github.com/rs/zerolog/log"
)

const (
	exitOK             = 0
	exitError          = 1
	exitNotImplemented = 2
)

func main() {
	logging.ConfigureRuntime("ohuactl")
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	opts, fs, err := parseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			return exitOK
		}
		return exitError
	}
	cfg, err := resolveClientConfig(opts, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ohuactl: %v\n", err)
		return exitError
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("log_level", cfg.LogLevel).Msg("ignoring unknown log level")
	}

	db, err := binding.Open(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ohuactl: %v\n", err)
		return exitError
	}

	ctx := context.Background()
	var status binding.Status
	record := map[string][]byte{}
	switch strings.ToLower(strings.TrimSpace(opts.op)) {
	case "read":
		status = db.Read(ctx, opts.table, opts.key, parseFields(opts.fields), record)
	case "insert":
		status = db.Insert(ctx, opts.table, opts.key, byteValues(opts.sets))
	case "update":
		status = db.Update(ctx, opts.table, opts.key, byteValues(opts.sets))
	case "delete":
		status = db.Delete(ctx, opts.table, opts.key)
	case "scan":
		var rows []map[string][]byte
		status = db.Scan(ctx, opts.table, opts.key, opts.count, parseFields(opts.fields), &rows)
	default:
		fmt.Fprintf(os.Stderr, "ohuactl: unknown op %q (supported: read, insert, update, delete, scan)\n", opts.op)
		return exitError
	}

	fmt.Fprintf(stdout, "status=%s\n", status)
	writeRecord(stdout, record)

	switch status {
	case binding.StatusOK:
		return exitOK
	case binding.StatusNotImplemented:
		return exitNotImplemented
	default:
		return exitError
	}
}

func byteValues(in setFlags) map[string][]byte {
	out := make(map[string][]byte, len(in))
	for field, v := range in {
		out[field] = []byte(v)
	}
	return out
}

func writeRecord(w io.Writer, record map[string][]byte) {
	fields := make([]string, 0, len(record))
	for field := range record {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(w, "%s=%s\n", field, record[field])
	}
}
