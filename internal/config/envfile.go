package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// envFilePaths lists env files in load order. CHATTERBOX_ENV_FILE comes
// first so its values win over the per-user files.
func envFilePaths() []string {
	var paths []string
	if explicit := strings.TrimSpace(os.Getenv("CHATTERBOX_ENV_FILE")); explicit != "" {
		if p, err := ExpandHome(explicit); err == nil {
			paths = append(paths, p)
		}
	}
	if home, err := resolveHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".config", "chatterbox", "env"),
			filepath.Join(home, ConfigDir, "env"),
			filepath.Join(home, ConfigDir, ".env"),
		)
	}
	return paths
}

// loadEnvFiles applies every env file that exists and returns the ones it
// read. Variables already set in the process are left alone.
func loadEnvFiles() []string {
	var loaded []string
	seen := make(map[string]bool)
	for _, p := range envFilePaths() {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if seen[p] {
			continue
		}
		seen[p] = true

		vars, err := readEnvFile(p)
		if err != nil {
			if !os.IsNotExist(err) {
				slog.Warn("Skipping env file", "path", p, "error", err)
			}
			continue
		}
		for _, kv := range vars {
			if _, set := os.LookupEnv(kv[0]); !set {
				_ = os.Setenv(kv[0], kv[1])
			}
		}
		loaded = append(loaded, p)
	}
	return loaded
}

// readEnvFile parses KEY=VALUE lines. Blank lines, # comments and an
// "export " prefix are accepted. Values may be quoted; unquoted and
// double-quoted values expand ${NAME} against earlier lines, then the process.
func readEnvFile(path string) ([][2]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var (
		out   [][2]string
		local = make(map[string]string)
		n     int
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			slog.Warn("Ignoring malformed env line", "path", path, "line", n)
			continue
		}
		val, literal := unquote(strings.TrimSpace(val))
		if !literal {
			val = os.Expand(val, func(name string) string {
				if v, ok := local[name]; ok {
					return v
				}
				return os.Getenv(name)
			})
		}
		local[key] = val
		out = append(out, [2]string{key, val})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return out, nil
}

// unquote strips matching quotes. Single-quoted values are literal.
func unquote(v string) (string, bool) {
	if len(v) >= 2 {
		switch {
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1], true
		case v[0] == '"' && v[len(v)-1] == '"':
			return v[1 : len(v)-1], false
		}
	}
	return v, false
}
