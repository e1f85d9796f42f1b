package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return clientTemplate, nil
	case "mock":
		return mockTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// DefaultPath is where the command consuming kind looks for its config.
func DefaultPath(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		return filepath.Join("cmd", "ohuactl", "config.toml"), nil
	case "mock":
		return filepath.Join("cmd", "ohuamock", "config.toml"), nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

// WriteTemplate writes the kind template to path, or to DefaultPath(kind) when
// path is empty, and returns the path written. Without overwrite an existing
// file is left alone.
func WriteTemplate(path, kind string, overwrite bool) (string, error) {
	template, err := Template(kind)
	if err != nil {
		return "", err
	}
	if path == "" {
		if path, err = DefaultPath(kind); err != nil {
			return "", err
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create config dir %s: %w", dir, err)
		}
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("config already exists: %s", path)
		}
		return "", err
	}
	if _, err := f.WriteString(template); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// Validate loads path (DefaultPath(kind) when empty) as a config of kind and
// reports the first problem.
func Validate(kind, path string) error {
	if path == "" {
		var err error
		if path, err = DefaultPath(kind); err != nil {
			return err
		}
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "client":
		_, err := LoadClientConfig(path)
		return err
	case "mock":
		_, err := LoadMockConfig(path)
		return err
	default:
		return fmt.Errorf("unknown config kind: %s", kind)
	}
}

const clientTemplate = `host = "localhost"
port = 12943
# zero or absent means no deadline beyond the transport's own
timeout = "0s"
half_close = false
log_level = "info"
`

const mockTemplate = `listen = "127.0.0.1:12943"
metrics_listen = ""
log_level = "info"
`
