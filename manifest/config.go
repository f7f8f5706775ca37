package manifest

import (
	"io"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/pulp-platform/bender-sub000/berr"
)

// Config is the tool-wide configuration, merged first-found-wins from
// Bender.local, the .bender.yml ancestry, ~/.config/bender.yml and
// /etc/bender.yml, mirroring config.rs's PartialConfig/Merge pattern
// (each field keeps the first non-empty value seen).
type Config struct {
	Database  string
	Git       string
	Overrides map[string]Dependency
}

// defaultConfig returns the configuration used when no config file
// supplies a field.
func defaultConfig() Config {
	db := ".bender"
	if home, err := os.UserHomeDir(); err == nil {
		db = filepath.Join(home, ".bender")
	}
	return Config{Database: db, Git: "git"}
}

// partialConfig is the on-wire shape of a single config file.
type partialConfig struct {
	Database  *string                  `yaml:"database,omitempty"`
	Git       *string                  `yaml:"git,omitempty"`
	Overrides map[string]rawDependency `yaml:"overrides,omitempty"`
}

// merge folds other into c, keeping c's fields where already set
// (first-found-wins, since search proceeds from the most specific
// config file outward).
func (c *partialConfig) merge(other partialConfig) {
	if c.Database == nil {
		c.Database = other.Database
	}
	if c.Git == nil {
		c.Git = other.Git
	}
	if c.Overrides == nil {
		c.Overrides = other.Overrides
	} else {
		for k, v := range other.Overrides {
			if _, ok := c.Overrides[k]; !ok {
				c.Overrides[k] = v
			}
		}
	}
}

// ConfigSearchPath returns the ordered list of candidate config files
// to merge, most-specific first, for a project rooted at root.
func ConfigSearchPath(root string) []string {
	var paths []string
	paths = append(paths, filepath.Join(root, "Bender.local"))

	dir := root
	for {
		paths = append(paths, filepath.Join(dir, ".bender.yml"))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		paths = append(paths, filepath.Join(u.HomeDir, ".config", "bender.yml"))
	}
	paths = append(paths, filepath.Join(string(filepath.Separator), "etc", "bender.yml"))
	return paths
}

// LoadConfig merges every existing file in ConfigSearchPath(root), first
// found wins, and validates the result against defaultConfig.
func LoadConfig(root string) (Config, error) {
	var merged partialConfig
	for _, path := range ConfigSearchPath(root) {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		var pc partialConfig
		err = yaml.NewDecoder(f).Decode(&pc)
		f.Close()
		if err != nil && err != io.EOF {
			return Config{}, berr.Wrapf(berr.Parse, err, "failed to parse config file %s", path)
		}
		merged.merge(pc)
	}

	def := defaultConfig()
	cfg := Config{Database: def.Database, Git: def.Git, Overrides: map[string]Dependency{}}
	if merged.Database != nil {
		cfg.Database = *merged.Database
	}
	if merged.Git != nil {
		cfg.Git = *merged.Git
	}
	for name, r := range merged.Overrides {
		d, err := toDependency(name, r)
		if err != nil {
			return Config{}, err
		}
		cfg.Overrides[name] = d
	}

	if cfg.Database == "" || cfg.Git == "" {
		return Config{}, berr.New(berr.Validate, "configuration is missing required `database` or `git` field")
	}
	return cfg, nil
}
