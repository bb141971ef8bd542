// internal/config/config.go
//
// This package handles configuration and the .choreo directory structure.
// Every project that composes timelines gets a .choreo/ folder in its root.

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kingrea/choreo/internal/timeline"
	"gopkg.in/yaml.v3"
)

const (
	// ChoreoDir is the name of the directory we create in each project
	ChoreoDir = ".choreo"

	defaultScenesDir = "scenes"
)

const defaultProjectConfigYAML = `# choreo project configuration
version: 1

timeline:
  # Duration applied to actions that do not declare one.
  default_duration: 250ms
  # Zero-length actions are stretched to this duration. Use 0s to disable.
  zero_duration: 1ms
  # permissive | warn | strict
  labels: permissive
  # concurrent | sequential
  sequencing: concurrent

scenes:
  dirs:
    - scenes

bridge:
  enabled: true
  host: 127.0.0.1
  port: 8765
`

// TimelineConfig tunes the scheduler.
type TimelineConfig struct {
	DefaultDuration time.Duration  `yaml:"default_duration"`
	ZeroDuration    *time.Duration `yaml:"zero_duration,omitempty"`
	Labels          string         `yaml:"labels,omitempty"`
	Sequencing      string         `yaml:"sequencing,omitempty"`
}

// SceneConfig lists directories scanned for scene definitions.
type SceneConfig struct {
	Dirs []string `yaml:"dirs,omitempty"`
}

// BridgeConfig captures completion bridge preferences.
type BridgeConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Host    string `yaml:"host,omitempty"`
	Port    int    `yaml:"port,omitempty"`
}

// ProjectConfig models .choreo/config.yaml.
type ProjectConfig struct {
	Version  int            `yaml:"version"`
	Timeline TimelineConfig `yaml:"timeline"`
	Scenes   SceneConfig    `yaml:"scenes"`
	Bridge   BridgeConfig   `yaml:"bridge"`
}

// Config holds the runtime configuration for choreo.
type Config struct {
	// ProjectDir is the directory choreo was run from
	ProjectDir string

	// ChoreoProjectDir is ProjectDir/.choreo
	ChoreoProjectDir string

	Project ProjectConfig
}

// InitDir creates the .choreo directory structure in the given project directory.
//
// Structure created:
// .choreo/
// ├── config.yaml
// ├── logs/      <- choreo.log and the commit journal
// └── scenes/    <- YAML and Go scene definitions
func InitDir(projectDir string) error {
	choreoDir := filepath.Join(projectDir, ChoreoDir)
	dirs := []string{
		filepath.Join(choreoDir, "logs"),
		filepath.Join(choreoDir, defaultScenesDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return ensureProjectConfig(filepath.Join(choreoDir, "config.yaml"))
}

// NewConfig creates a Config populated with project settings and environment
// overrides. A missing config.yaml yields the defaults.
func NewConfig(projectDir string) (*Config, error) {
	cfg := &Config{
		ProjectDir:       projectDir,
		ChoreoProjectDir: filepath.Join(projectDir, ChoreoDir),
		Project:          defaultProjectConfig(),
	}
	if err := cfg.loadProjectConfig(); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LogsDir returns the path to the logs directory
func (c *Config) LogsDir() string {
	return filepath.Join(c.ChoreoProjectDir, "logs")
}

// LogPath returns the diagnostic log location.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogsDir(), "choreo.log")
}

// JournalPath returns the commit journal location.
func (c *Config) JournalPath() string {
	return filepath.Join(c.LogsDir(), "journal.log")
}

// ProjectConfigPath returns the on-disk location for the project config file.
func (c *Config) ProjectConfigPath() string {
	return filepath.Join(c.ChoreoProjectDir, "config.yaml")
}

// SceneDirs returns the absolute scene directories in scan order.
func (c *Config) SceneDirs() []string {
	dirs := make([]string, 0, len(c.Project.Scenes.Dirs))
	for _, dir := range c.Project.Scenes.Dirs {
		dirs = append(dirs, resolvePath(c.ChoreoProjectDir, dir))
	}
	return dirs
}

// DefaultDuration returns the block default duration.
func (c *Config) DefaultDuration() time.Duration {
	return c.Project.Timeline.DefaultDuration
}

// TimelineOptions converts the timeline section into session options.
func (c *Config) TimelineOptions() []timeline.Option {
	tl := c.Project.Timeline
	labels, _ := timeline.ParseLabelPolicy(tl.Labels)
	sequencing, _ := timeline.ParseSequencing(tl.Sequencing)
	opts := []timeline.Option{
		timeline.WithLabelPolicy(labels),
		timeline.WithSequencing(sequencing),
	}
	if tl.ZeroDuration != nil {
		opts = append(opts, timeline.WithZeroDuration(*tl.ZeroDuration))
	}
	return opts
}

func (c *Config) loadProjectConfig() error {
	path := c.ProjectConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed ProjectConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}

	parsed.applyDefaults()
	parsed.normalize()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	c.Project = parsed
	return nil
}

func (c *Config) applyEnvOverrides() error {
	tl := &c.Project.Timeline
	if value := strings.TrimSpace(os.Getenv("CHOREO_DEFAULT_DURATION")); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: CHOREO_DEFAULT_DURATION: %w", err)
		}
		tl.DefaultDuration = d
	}
	if value := strings.TrimSpace(os.Getenv("CHOREO_ZERO_DURATION")); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("config: CHOREO_ZERO_DURATION: %w", err)
		}
		tl.ZeroDuration = &d
	}
	if value := strings.TrimSpace(os.Getenv("CHOREO_LABELS")); value != "" {
		tl.Labels = value
	}
	if value := strings.TrimSpace(os.Getenv("CHOREO_SEQUENCING")); value != "" {
		tl.Sequencing = value
	}
	if value := strings.TrimSpace(os.Getenv("CHOREO_BRIDGE_ENABLED")); value != "" {
		if enabled, err := strconv.ParseBool(value); err == nil {
			c.Project.Bridge.Enabled = &enabled
		}
	}
	if host := strings.TrimSpace(os.Getenv("CHOREO_BRIDGE_HOST")); host != "" {
		c.Project.Bridge.Host = host
	}
	if port := strings.TrimSpace(os.Getenv("CHOREO_BRIDGE_PORT")); port != "" {
		if parsed, err := strconv.Atoi(port); err == nil {
			c.Project.Bridge.Port = parsed
		}
	}
	c.Project.normalize()
	if err := c.Project.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func defaultProjectConfig() ProjectConfig {
	zero := timeline.DefaultZeroDuration
	return ProjectConfig{
		Version: 1,
		Timeline: TimelineConfig{
			DefaultDuration: timeline.DefaultBlockDuration,
			ZeroDuration:    &zero,
			Labels:          string(timeline.LabelsPermissive),
			Sequencing:      string(timeline.SequencingConcurrent),
		},
		Scenes: SceneConfig{Dirs: []string{defaultScenesDir}},
	}
}

func (pc *ProjectConfig) applyDefaults() {
	if pc.Version == 0 {
		pc.Version = 1
	}
	if pc.Timeline.DefaultDuration == 0 {
		pc.Timeline.DefaultDuration = timeline.DefaultBlockDuration
	}
	if pc.Timeline.ZeroDuration == nil {
		zero := timeline.DefaultZeroDuration
		pc.Timeline.ZeroDuration = &zero
	}
	if len(pc.Scenes.Dirs) == 0 {
		pc.Scenes.Dirs = []string{defaultScenesDir}
	}
}

func (pc *ProjectConfig) normalize() {
	pc.Timeline.Labels = strings.ToLower(strings.TrimSpace(pc.Timeline.Labels))
	pc.Timeline.Sequencing = strings.ToLower(strings.TrimSpace(pc.Timeline.Sequencing))
	dirs := pc.Scenes.Dirs[:0]
	for _, dir := range pc.Scenes.Dirs {
		if trimmed := strings.TrimSpace(dir); trimmed != "" {
			dirs = append(dirs, trimmed)
		}
	}
	pc.Scenes.Dirs = dirs
	pc.Bridge.Host = strings.TrimSpace(pc.Bridge.Host)
}

func (pc *ProjectConfig) validate() error {
	if pc.Version < 1 {
		return fmt.Errorf("config version must be >= 1")
	}
	if pc.Timeline.DefaultDuration < 0 {
		return fmt.Errorf("timeline.default_duration must be >= 0")
	}
	if pc.Timeline.ZeroDuration != nil && *pc.Timeline.ZeroDuration < 0 {
		return fmt.Errorf("timeline.zero_duration must be >= 0")
	}
	if _, err := timeline.ParseLabelPolicy(pc.Timeline.Labels); err != nil {
		return fmt.Errorf("timeline.labels: %w", err)
	}
	if _, err := timeline.ParseSequencing(pc.Timeline.Sequencing); err != nil {
		return fmt.Errorf("timeline.sequencing: %w", err)
	}
	if pc.Bridge.Port < 0 || pc.Bridge.Port > 65535 {
		return fmt.Errorf("bridge.port must be within 0-65535")
	}
	return nil
}

func resolvePath(base, candidate string) string {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return ""
	}
	if filepath.IsAbs(trimmed) {
		return filepath.Clean(trimmed)
	}
	return filepath.Clean(filepath.Join(base, trimmed))
}

func ensureProjectConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, []byte(defaultProjectConfigYAML), 0644)
}
