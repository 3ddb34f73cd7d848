// Package config loads the worker configuration. Compiled-in defaults match
// the paths the conversion tool uses on the target hosts; a YAML file can
// override any of them, which is mainly used by tests and staging runs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// RequiredFile describes one file the worker fetches before the run.
type RequiredFile struct {
	Path       string `yaml:"path"`
	Source     string `yaml:"source"`
	SigningKey bool   `yaml:"signing_key"`
}

// Config carries every host path and external-tool name the worker touches.
type Config struct {
	// Conversion tool invocation.
	ToolPath    string `yaml:"tool_path"`
	PackageName string `yaml:"package_name"`

	// Tool output consumed by the worker.
	LogFile       string `yaml:"log_file"`
	ReportFile    string `yaml:"report_file"`
	ReportTxtFile string `yaml:"report_txt_file"`
	ArchiveDir    string `yaml:"archive_dir"`

	// Precondition checks.
	SystemReleasePath string `yaml:"system_release_path"`
	DefaultConfigPath string `yaml:"default_config_path"`
	CustomConfigPath  string `yaml:"custom_config_path"`

	// Host command paths.
	YumPath       string `yaml:"yum_path"`
	RPMPath       string `yaml:"rpm_path"`
	SystemctlPath string `yaml:"systemctl_path"`
	InventoryPath string `yaml:"inventory_path"`

	// Metering add-on enabled by the pay-as-you-go toggle.
	MeteringPackage string `yaml:"metering_package"`
	MeteringService string `yaml:"metering_service"`

	// Run-history ledger.
	HistoryDBPath string `yaml:"history_db_path"`

	RequiredFiles []RequiredFile `yaml:"required_files"`
}

// Default returns the production configuration.
func Default() *Config {
	logDir := "/var/log/convert2rhel"
	return &Config{
		ToolPath:          "/usr/bin/convert2rhel",
		PackageName:       "convert2rhel",
		LogFile:           logDir + "/convert2rhel.log",
		ReportFile:        logDir + "/convert2rhel-pre-conversion.json",
		ReportTxtFile:     logDir + "/convert2rhel-pre-conversion.txt",
		ArchiveDir:        logDir + "/archive",
		SystemReleasePath: "/etc/system-release",
		DefaultConfigPath: "/etc/convert2rhel.ini",
		CustomConfigPath:  "~/.convert2rhel.ini",
		YumPath:           "/usr/bin/yum",
		RPMPath:           "/usr/bin/rpm",
		SystemctlPath:     "systemctl",
		InventoryPath:     "/usr/bin/insights-client",
		MeteringPackage:   "host-metering",
		MeteringService:   "host-metering.service",
		HistoryDBPath:     "/var/lib/osmigrate/history.db",
		RequiredFiles: []RequiredFile{
			{
				Path:       "/etc/pki/rpm-gpg/RPM-GPG-KEY-redhat-release",
				Source:     "https://www.redhat.com/security/data/fd431d51.txt",
				SigningKey: true,
			},
			{
				Path:   "/etc/yum.repos.d/convert2rhel.repo",
				Source: "https://ftp.redhat.com/redhat/convert2rhel/7/convert2rhel.repo",
			},
		},
	}
}

// Load reads a YAML config over the defaults. An empty path yields the
// defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// CustomConfigAbs expands a leading ~ in CustomConfigPath to the current
// user's home directory.
func (c *Config) CustomConfigAbs() string {
	path := c.CustomConfigPath
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
