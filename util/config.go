package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "andstatus"
const ConfigFileName = "config.yaml"

const (
	DefaultSyncWorkers  = 4
	DefaultMaxRecursion = 200
	DefaultStoreRetries = 3
)

//go:embed config_default.yaml
var embeddedConfig []byte

type OriginConf struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Host string `yaml:"host"`
}

// AccountConf names one of "my" accounts; Oid may be empty when unknown yet.
type AccountConf struct {
	Origin   string `yaml:"origin"`
	Username string `yaml:"username"`
	Oid      string `yaml:"oid"`
}

type AppConfig struct {
	Conf struct {
		DbPath       string `yaml:"dbPath"`
		Host         string `yaml:"host"`
		HttpPort     int    `yaml:"httpPort"`
		LogLevel     string `yaml:"logLevel"`
		LogFormat    string `yaml:"logFormat"`
		SyncWorkers  int    `yaml:"syncWorkers"`
		MaxRecursion int    `yaml:"maxRecursion"`
		StoreRetries int    `yaml:"storeRetries"`
		SpoolDir     string `yaml:"spoolDir"`
	}
	Origins  []OriginConf  `yaml:"origins"`
	Accounts []AccountConf `yaml:"accounts"`
}

// ReadConf reads config.yaml from the working directory or the user config
// directory, falling back to the embedded defaults.
func ReadConf() (*AppConfig, error) {
	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		log.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warn("Could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("Created default config file", "path", userConfigPath)
			}
		}
	}
	return parseConf(buf)
}

// ReadConfFrom reads an explicitly given config file.
func ReadConfFrom(path string) (*AppConfig, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return parseConf(buf)
}

func parseConf(buf []byte) (*AppConfig, error) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}
	applyEnv(c)
	applyDefaults(c)
	return c, nil
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("ANDSTATUS_DB_PATH"); v != "" {
		c.Conf.DbPath = v
	}
	if v := os.Getenv("ANDSTATUS_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("ANDSTATUS_LOG_LEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if v := os.Getenv("ANDSTATUS_LOG_FORMAT"); v != "" {
		c.Conf.LogFormat = v
	}
	if v := os.Getenv("ANDSTATUS_SPOOL_DIR"); v != "" {
		c.Conf.SpoolDir = v
	}
	envInt("ANDSTATUS_HTTPPORT", &c.Conf.HttpPort)
	envInt("ANDSTATUS_SYNC_WORKERS", &c.Conf.SyncWorkers)
	envInt("ANDSTATUS_MAX_RECURSION", &c.Conf.MaxRecursion)
	envInt("ANDSTATUS_STORE_RETRIES", &c.Conf.StoreRetries)
}

// envInt keeps the yaml value when the variable is not a number.
func envInt(name string, dst *int) {
	s := os.Getenv(name)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Warn("Ignoring invalid number in environment", "name", name, "value", s)
		return
	}
	*dst = v
}

func applyDefaults(c *AppConfig) {
	if c.Conf.DbPath == "" {
		c.Conf.DbPath = Name + ".db"
	}
	if c.Conf.SyncWorkers <= 0 {
		c.Conf.SyncWorkers = DefaultSyncWorkers
	}
	if c.Conf.MaxRecursion <= 0 {
		c.Conf.MaxRecursion = DefaultMaxRecursion
	}
	if c.Conf.StoreRetries <= 0 {
		c.Conf.StoreRetries = DefaultStoreRetries
	}
	if c.Conf.LogLevel == "" {
		c.Conf.LogLevel = "info"
	}
}

// DefaultConf returns the embedded configuration.
func DefaultConf() *AppConfig {
	c, err := parseConf(embeddedConfig)
	if err != nil {
		panic(err)
	}
	return c
}
