package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultAnalysisAPIURL is used when neither the config file nor the
// environment names an analysis endpoint.
const DefaultAnalysisAPIURL = "http://localhost:8501"

// Environment overrides
const (
	EnvAnalysisAPIURL = "ANALYSIS_API_URL"
	EnvStoreDriver    = "CONTRACTDASH_STORE_DRIVER"
	EnvStorePath      = "CONTRACTDASH_STORE_PATH"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Storage  StorageConfig  `yaml:"storage"`
	Minio    MinioConfig    `yaml:"minio"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	StaticDir      string   `yaml:"static_dir"`
}

type AnalysisConfig struct {
	APIURL         string `yaml:"api_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxUploadMB    int    `yaml:"max_upload_mb"`
	// analyze requests per tenant per minute
	RateLimit int `yaml:"rate_limit"`
}

type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite, dir, memory
	Path         string `yaml:"path"`
	HistoryLimit int    `yaml:"history_limit"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	ExpireDays int    `yaml:"expire_days"`
}

// Enabled reports whether uploads should be archived to object storage.
func (m MinioConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

// Load reads the YAML file at path, applies environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration built only from the environment and defaults.
// The CLI uses it when no config file is present.
func Default() *Config {
	var cfg Config
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAnalysisAPIURL); v != "" {
		c.Analysis.APIURL = v
	}
	if v := os.Getenv(EnvStoreDriver); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv(EnvStorePath); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("CONTRACTDASH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Analysis.APIURL == "" {
		c.Analysis.APIURL = DefaultAnalysisAPIURL
	}
	if c.Analysis.TimeoutSeconds == 0 {
		c.Analysis.TimeoutSeconds = 300
	}
	if c.Analysis.MaxUploadMB == 0 {
		c.Analysis.MaxUploadMB = 20
	}
	if c.Analysis.RateLimit == 0 {
		c.Analysis.RateLimit = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath(c.Storage.Driver)
	}
	if c.Storage.HistoryLimit == 0 {
		c.Storage.HistoryLimit = 20
	}
	if c.Minio.Region == "" {
		c.Minio.Region = "us-east-1"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// DefaultStoragePath is where driver keeps its data when no path is configured.
func DefaultStoragePath(driver string) string {
	if driver == "dir" {
		return "data/storage"
	}
	return "data/contractdash.db"
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
