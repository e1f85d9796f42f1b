package main

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/danmuck/ohuakv/internal/config"
)

// setFlags collects repeated -set field=value pairs.
type setFlags map[string]string

func (s setFlags) String() string {
	pairs := make([]string, 0, len(s))
	for field, v := range s {
		pairs = append(pairs, field+"="+v)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (s setFlags) Set(raw string) error {
	field, value, ok := strings.Cut(raw, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return fmt.Errorf("expected field=value, got %q", raw)
	}
	s[field] = value
	return nil
}

type options struct {
	configPath string
	host       string
	port       int
	timeout    time.Duration
	halfClose  bool
	op         string
	table      string
	key        string
	fields     string
	count      int
	sets       setFlags
}

func parseFlags(args []string) (options, *flag.FlagSet, error) {
	opts := options{sets: setFlags{}}
	fs := flag.NewFlagSet("ohuactl", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "client config file (.toml, .yaml)")
	fs.StringVar(&opts.host, "host", config.DefaultHost, "server host")
	fs.IntVar(&opts.port, "port", config.DefaultPort, "server port")
	fs.DurationVar(&opts.timeout, "timeout", 0, "dial and I/O timeout (0 = none)")
	fs.BoolVar(&opts.halfClose, "half-close", false, "half-close the write side after sending")
	fs.StringVar(&opts.op, "op", "read", "operation: read | insert | update | delete | scan")
	fs.StringVar(&opts.table, "table", "usertable", "table name")
	fs.StringVar(&opts.key, "key", "", "record key (start key for scan)")
	fs.StringVar(&opts.fields, "fields", "", "comma-separated read field filter")
	fs.IntVar(&opts.count, "count", 1, "scan record count")
	fs.Var(opts.sets, "set", "field=value to write (repeatable)")
	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	return opts, fs, nil
}

// resolveClientConfig layers explicitly set flags over the config file over defaults.
func resolveClientConfig(opts options, fs *flag.FlagSet) (config.ClientConfig, error) {
	cfg := config.DefaultClientConfig()
	if path := strings.TrimSpace(opts.configPath); path != "" {
		loaded, err := config.LoadClientConfig(path)
		if err != nil {
			return config.ClientConfig{}, fmt.Errorf("load client config: %w", err)
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Host = strings.TrimSpace(opts.host)
		case "port":
			cfg.Port = opts.port
		case "timeout":
			cfg.Timeout = opts.timeout
		case "half-close":
			cfg.HalfClose = opts.halfClose
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.ClientConfig{}, err
	}
	return cfg, nil
}

func parseFields(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	out := make([]string, 0)
	for _, field := range strings.Split(raw, ",") {
		v := strings.TrimSpace(field)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
