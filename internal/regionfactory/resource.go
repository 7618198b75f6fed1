package regionfactory

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/config"
)

var ErrConfigurationNotFound = errors.New("unable to find cache configuration")

// loadConfiguration reads the configuration named by resource: a file:// URL,
// a path, or a path relative to the working or executable directory. Empty
// selects the built-in default.
func loadConfiguration(resource string) (*config.Configuration, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return config.Default(), nil
	}

	path, err := resolveResource(resource)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("resource", resource).Str("path", path).Msg("loading cache configuration")

	cfg, err := config.ParseFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cache configuration %s", resource)
	}
	return cfg, nil
}

func resolveResource(resource string) (string, error) {
	if u, err := url.Parse(resource); err == nil && u.Scheme == "file" {
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return path, nil
	}

	if fileExists(resource) {
		return resource, nil
	}

	// a leading slash means the root of a search directory as well
	relative := strings.TrimPrefix(resource, "/")
	for _, dir := range searchDirs() {
		candidate := filepath.Join(dir, relative)
		if fileExists(candidate) {
			return candidate, nil
		}
	}

	log.Warn().Str("resource", resource).Msg("unable to load cache configuration")
	return "", errors.Wrapf(ErrConfigurationNotFound, "%s", resource)
}

func searchDirs() []string {
	var dirs []string
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	return dirs
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
