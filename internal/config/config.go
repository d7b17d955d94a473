package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/renderhost/chrome-installer/internal/installer"
	"github.com/renderhost/chrome-installer/internal/platform"
)

type Config struct {
	ChromeVersion          string   `mapstructure:"chrome_version"`
	Sources                []string `mapstructure:"sources"`
	InstallPath            string   `mapstructure:"install_path"`
	InstallDeps            bool     `mapstructure:"install_deps"`
	HonorProxy             bool     `mapstructure:"honor_proxy"`
	UserAgent              string   `mapstructure:"user_agent"` // empty keeps the built-in browser UA
	DownloadTimeoutSeconds int      `mapstructure:"download_timeout_seconds"`
	DepsTimeoutSeconds     int      `mapstructure:"deps_timeout_seconds"`
	ExtractTimeoutSeconds  int      `mapstructure:"extract_timeout_seconds"`
	MinFreeSpaceMB         int      `mapstructure:"min_free_space_mb"`
	ListenAddr             string   `mapstructure:"listen_addr"`

	// Logging
	LogLevel      string `mapstructure:"log_level"`
	LogFormat     string `mapstructure:"log_format"`
	LogFile       string `mapstructure:"log_file"`
	LogMaxSizeMB  int    `mapstructure:"log_max_size_mb"`
	LogMaxBackups int    `mapstructure:"log_max_backups"`
}

func Default() *Config {
	return &Config{
		ChromeVersion:          installer.DefaultVersion,
		Sources:                defaultSourceNames(),
		InstallPath:            platform.DefaultInstallPath(runtime.GOOS),
		InstallDeps:            true,
		HonorProxy:             true,
		DownloadTimeoutSeconds: 30,
		DepsTimeoutSeconds:     300,
		ExtractTimeoutSeconds:  600,
		MinFreeSpaceMB:         512,
		ListenAddr:             "127.0.0.1:7788",
		LogLevel:               "info",
		LogFormat:              "text",
		LogMaxSizeMB:           10,
		LogMaxBackups:          3,
	}
}

// Load reads cfgFile, or chrome-installer.yaml from the config directory
// and the working directory when cfgFile is empty. A missing file is not an
// error. CHROME_INSTALLER_* environment variables override file values.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()
	v := viper.New()
	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("chrome-installer")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CHROME_INSTALLER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("chrome_version", cfg.ChromeVersion)
	v.SetDefault("sources", cfg.Sources)
	v.SetDefault("install_path", cfg.InstallPath)
	v.SetDefault("install_deps", cfg.InstallDeps)
	v.SetDefault("honor_proxy", cfg.HonorProxy)
	v.SetDefault("user_agent", cfg.UserAgent)
	v.SetDefault("download_timeout_seconds", cfg.DownloadTimeoutSeconds)
	v.SetDefault("deps_timeout_seconds", cfg.DepsTimeoutSeconds)
	v.SetDefault("extract_timeout_seconds", cfg.ExtractTimeoutSeconds)
	v.SetDefault("min_free_space_mb", cfg.MinFreeSpaceMB)
	v.SetDefault("listen_addr", cfg.ListenAddr)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("log_max_size_mb", cfg.LogMaxSizeMB)
	v.SetDefault("log_max_backups", cfg.LogMaxBackups)
}

func (c *Config) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

func (c *Config) DepsTimeout() time.Duration {
	return time.Duration(c.DepsTimeoutSeconds) * time.Second
}

func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

// MinFreeSpaceBytes is the preflight threshold; 0 disables the check.
func (c *Config) MinFreeSpaceBytes() uint64 {
	if c.MinFreeSpaceMB <= 0 {
		return 0
	}
	return uint64(c.MinFreeSpaceMB) * 1024 * 1024
}

func defaultSourceNames() []string {
	var names []string
	for _, src := range installer.DefaultSources() {
		names = append(names, src.Name)
	}
	return names
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "ChromeInstaller")
	case "darwin":
		return "/Library/Application Support/ChromeInstaller"
	default:
		return "/etc/chrome-installer"
	}
}
