package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config interface {
	EnvConfig
	CorsConfig
	PassportConfig
	StorageConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetLogLevel() string
	GetReturnPath() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

// FileConfig is the YAML representation of the configuration. Environment
// variables take precedence over any value set here.
type FileConfig struct {
	Env      string       `yaml:"env" validate:"omitempty,oneof=DEV TEST PROD"`
	AppName  string       `yaml:"app_name"`
	Port     string       `yaml:"port" validate:"omitempty,numeric"`
	LogLevel string       `yaml:"log_level" validate:"omitempty,oneof=trace debug info warn error"`
	Passport PassportFile `yaml:"passport"`
	Storage  StorageFile  `yaml:"storage"`
	Server   ServerFile   `yaml:"server"`
}

type PassportFile struct {
	BaseURL        string        `yaml:"base_url" validate:"omitempty,url"`
	RefreshURL     string        `yaml:"refresh_url" validate:"omitempty,url"`
	Issuer         string        `yaml:"issuer" validate:"omitempty,url"`
	ClientID       string        `yaml:"client_id"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"gte=0"`
	LogoutTimeout  time.Duration `yaml:"logout_timeout" validate:"gte=0"`
}

type StorageFile struct {
	Backend        string        `yaml:"backend" validate:"omitempty,oneof=file sqlite redis memory"`
	SessionBackend string        `yaml:"session_backend" validate:"omitempty,oneof=memory redis"`
	TokenFile      string        `yaml:"token_file"`
	SQLitePath     string        `yaml:"sqlite_path"`
	RedisAddr      string        `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPrefix    string        `yaml:"redis_prefix"`
	SessionTTL     time.Duration `yaml:"session_ttl" validate:"gte=0"`
	EncryptionKey  string        `yaml:"encryption_key"`
	LoginTier      string        `yaml:"login_tier" validate:"omitempty,oneof=durable session"`
}

type ServerFile struct {
	ReturnPath     string   `yaml:"return_path"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type mainConfig struct {
	EnvVars
	Cors
	Passport
	Storage
}

// New returns a configuration backed by environment variables and defaults only.
func New() Config {
	return fromFile(&FileConfig{})
}

// Load reads an optional .env file and an optional YAML file. An empty path
// skips the YAML file.
func Load(path string) (Config, error) {
	// A missing .env is normal outside of development.
	_ = godotenv.Load()

	fc := &FileConfig{}
	if path == "" {
		return fromFile(fc), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[config Load] read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, fc); err != nil {
		return nil, fmt.Errorf("[config Load] parse %s: %w", path, err)
	}
	if err := validator.New().Struct(fc); err != nil {
		return nil, fmt.Errorf("[config Load] validate %s: %w", path, err)
	}
	return fromFile(fc), nil
}

func fromFile(fc *FileConfig) Config {
	return mainConfig{
		EnvVars:  EnvVars{file: fc},
		Cors:     Cors{file: fc},
		Passport: Passport{file: fc},
		Storage:  Storage{file: fc},
	}
}
