// Package config handles loading, saving, and resolving the forksmith
// workspace configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v3"

	"github.com/skaphos/forksmith/internal/model"
)

const (
	// LocalConfigFilename is the per-workspace forksmith config file.
	LocalConfigFilename = ".forksmith.yaml"
	// ConfigAPIVersion is the current config schema apiVersion.
	ConfigAPIVersion = "skaphos.io/forksmith/v1beta1"
	// ConfigKind is the current config schema kind.
	ConfigKind = "ForksmithConfig"
	// EnvConfig overrides config path resolution.
	EnvConfig = "FORKSMITH_CONFIG"

	DefaultVendorRoot     = "vendor/codex"
	DefaultBranch         = "main"
	DefaultRegistryPath   = "patch-registry/registry.json"
	DefaultBuildCommand   = "cargo build --release"
	DefaultAstGrepBinary  = "ast-grep"
	DefaultCocciBinary    = "coccinelle-for-rust"
	DefaultCocciExtension = ".cocci"
)

// VendorConfig locates the vendor tree inside the workspace.
type VendorConfig struct {
	Root   string `yaml:"root" validate:"required"`
	Branch string `yaml:"branch" validate:"required"`
}

// RegistryConfig locates the patch registry file.
type RegistryConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// AstGrepConfig configures the structural-rule engine.
type AstGrepConfig struct {
	Binary   string `yaml:"binary" validate:"required"`
	RulesDir string `yaml:"rules_dir" validate:"required"`
	// Target is the path scanned, relative to the vendor tree. Empty means
	// the whole tree.
	Target string `yaml:"target,omitempty"`
}

// CoccinelleConfig configures the semantic-patch engine.
type CoccinelleConfig struct {
	Binary    string `yaml:"binary" validate:"required"`
	RulesDir  string `yaml:"rules_dir" validate:"required"`
	Extension string `yaml:"extension" validate:"required,startswith=."`
	Target    string `yaml:"target,omitempty"`
}

// EnginesConfig groups the external transformation engines.
type EnginesConfig struct {
	AstGrep    AstGrepConfig    `yaml:"ast_grep"`
	Coccinelle CoccinelleConfig `yaml:"coccinelle"`
}

// BuildConfig configures the release build run after patching.
type BuildConfig struct {
	Command string `yaml:"command" validate:"required"`
	// Dir is relative to the vendor tree. Empty means the tree root.
	Dir string `yaml:"dir,omitempty"`
}

// Config represents the workspace-level forksmith configuration.
type Config struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Vendor     VendorConfig     `yaml:"vendor"`
	Registry   RegistryConfig   `yaml:"registry"`
	Fork       model.ForkPolicy `yaml:"fork"`
	Engines    EnginesConfig    `yaml:"engines"`
	Build      BuildConfig      `yaml:"build"`
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() Config {
	return Config{
		APIVersion: ConfigAPIVersion,
		Kind:       ConfigKind,
		Vendor: VendorConfig{
			Root:   DefaultVendorRoot,
			Branch: DefaultBranch,
		},
		Registry: RegistryConfig{Path: DefaultRegistryPath},
		Fork: model.ForkPolicy{
			LocalRemote:          "origin",
			UpstreamRemote:       "upstream",
			RequireCleanWorktree: true,
			AbortOnDivergence:    true,
			AutoStashBeforeMerge: true,
		},
		Engines: EnginesConfig{
			AstGrep: AstGrepConfig{
				Binary:   DefaultAstGrepBinary,
				RulesDir: "patches/ast-grep",
			},
			Coccinelle: CoccinelleConfig{
				Binary:    DefaultCocciBinary,
				RulesDir:  "patches/coccinelle",
				Extension: DefaultCocciExtension,
			},
		},
		Build: BuildConfig{Command: DefaultBuildCommand},
	}
}

// ConfigDir returns the platform-appropriate global config directory.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "forksmith"), nil
}

// ConfigPath resolves the config file path from override/env/defaults.
func ConfigPath(override string) (string, error) {
	if override != "" {
		return fileOrDefault(override), nil
	}
	if env := os.Getenv(EnvConfig); env != "" {
		return fileOrDefault(env), nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// InitConfigPath resolves where "forksmith init" should write config.
// Order: explicit override, FORKSMITH_CONFIG, then local dotfile in cwd.
func InitConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override)
	}
	cwd, err := workingDir(cwd)
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, LocalConfigFilename), nil
}

// ResolveConfigPath resolves config for runtime commands.
// Order: explicit override, FORKSMITH_CONFIG, nearest local dotfile in
// cwd/parents, then the global platform config path.
func ResolveConfigPath(override, cwd string) (string, error) {
	if override != "" || os.Getenv(EnvConfig) != "" {
		return ConfigPath(override)
	}
	cwd, err := workingDir(cwd)
	if err != nil {
		return "", err
	}
	localPath, err := FindNearestConfigPath(cwd)
	if err != nil {
		return "", err
	}
	if localPath != "" {
		return localPath, nil
	}
	return ConfigPath("")
}

// FindNearestConfigPath searches cwd and each parent directory for
// .forksmith.yaml. It returns an empty string when none is found.
func FindNearestConfigPath(cwd string) (string, error) {
	dir := cwd
	for {
		candidate := filepath.Join(dir, LocalConfigFilename)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		} else if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Load reads and validates the config file at path. Fork branches left
// empty inherit vendor.branch.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigGVK(&cfg)
	applyBranchDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Save writes the config to the given path.
func Save(cfg *Config, path string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	applyConfigGVK(cfg)
	applyBranchDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks schema identity and required fields.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.APIVersion != ConfigAPIVersion {
		return fmt.Errorf("unsupported config apiVersion %q (expected %q)", cfg.APIVersion, ConfigAPIVersion)
	}
	if cfg.Kind != ConfigKind {
		return fmt.Errorf("unsupported config kind %q (expected %q)", cfg.Kind, ConfigKind)
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// WorkspaceRoot returns the directory holding configPath. Relative paths in
// the config resolve against it.
func WorkspaceRoot(configPath string) string {
	if strings.TrimSpace(configPath) == "" {
		return ""
	}
	return filepath.Clean(filepath.Dir(configPath))
}

// ResolvePath joins a relative path onto base; absolute paths are returned
// cleaned.
func ResolvePath(base, path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	if filepath.IsAbs(path) || strings.TrimSpace(base) == "" {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(base, path))
}

// VendorDir is the absolute vendor tree for a workspace.
func (c *Config) VendorDir(workspace string) string {
	return ResolvePath(workspace, c.Vendor.Root)
}

// RegistryPath is the absolute registry file for a workspace.
func (c *Config) RegistryPath(workspace string) string {
	return ResolvePath(workspace, c.Registry.Path)
}

func fileOrDefault(path string) string {
	if isConfigFilePath(path) {
		return path
	}
	return filepath.Join(path, "config.yaml")
}

func workingDir(cwd string) (string, error) {
	if strings.TrimSpace(cwd) != "" {
		return cwd, nil
	}
	return os.Getwd()
}

func isConfigFilePath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyConfigGVK(cfg *Config) {
	if strings.TrimSpace(cfg.APIVersion) == "" {
		cfg.APIVersion = ConfigAPIVersion
	}
	if strings.TrimSpace(cfg.Kind) == "" {
		cfg.Kind = ConfigKind
	}
}

func applyBranchDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Fork.LocalBranch) == "" {
		cfg.Fork.LocalBranch = cfg.Vendor.Branch
	}
	if strings.TrimSpace(cfg.Fork.UpstreamBranch) == "" {
		cfg.Fork.UpstreamBranch = cfg.Vendor.Branch
	}
}
