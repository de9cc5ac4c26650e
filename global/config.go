package global

import (
	"crypto/ed25519"
	"os"

	"github.com/go-redis/redis_rate/v10"
	"gopkg.in/yaml.v2"
)

// Conf global config
var Conf Config

// Ed25519 signing key of the server (loaded from serverKeysPath in conf.yaml),
// used to mint and verify recipient access tokens.
var PublicKey ed25519.PublicKey
var PrivateKey ed25519.PrivateKey

// Global rate limiter
var RateLimiter *redis_rate.Limiter

type Config struct {
	Version        string           `yaml:"version"`
	Host           string           `yaml:"host"`
	Port           int              `yaml:"port"`
	Scheme         string           `yaml:"scheme"`
	Mode           string           `yaml:"mode"` // debug or release
	ServerKeysPath string           `yaml:"serverKeysPath"`
	CouchDB        CouchDBConfig    `yaml:"couchdb"`
	Redis          RedisConfig      `yaml:"redis"`
	Queue          Queue            `yaml:"queue"`
	Prometheus     PrometheusConfig `yaml:"prometheus"`
	Retention      RetentionConfig  `yaml:"retention"`
	Storage        StorageConfig    `yaml:"storage"`
	Intake         IntakeConfig     `yaml:"intake"`
}

type CouchDBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	Username string `yaml:"username"`
}

type Queue struct {
	Concurrency int `yaml:"concurrency"`
}

type PrometheusConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RetentionConfig sets the default and maximum submission time to live.
// SweepCron is the schedule of the expiry sweep.
type RetentionConfig struct {
	ExpiryDays    int    `yaml:"expiryDays"`
	MaxExpiryDays int    `yaml:"maxExpiryDays"`
	SweepCron     string `yaml:"sweepCron"`
}

// StorageConfig is the S3 compatible object storage for encrypted attachments
type StorageConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint,omitempty"`
	Key      string `yaml:"key"`
	Secret   string `yaml:"secret"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
}

// IntakeConfig bounds the anonymous intake surface
type IntakeConfig struct {
	MaxPayloadBytes    int64 `yaml:"maxPayloadBytes"`
	MaxAttachmentBytes int64 `yaml:"maxAttachmentBytes"`
	RequestsPerSecond  int   `yaml:"requestsPerSecond"` // global, not per client
}

// LoadConfig reads a yaml configuration file into the global Conf
func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, &Conf); err != nil {
		return err
	}
	if Conf.Scheme == "" {
		Conf.Scheme = "http"
	}
	if Conf.Retention.ExpiryDays == 0 {
		Conf.Retention.ExpiryDays = 90
	}
	if Conf.Retention.MaxExpiryDays == 0 {
		Conf.Retention.MaxExpiryDays = 365
	}
	if Conf.Retention.SweepCron == "" {
		Conf.Retention.SweepCron = "@every 10m"
	}
	if Conf.Intake.MaxPayloadBytes == 0 {
		Conf.Intake.MaxPayloadBytes = 1 << 20 // 1 MiB
	}
	if Conf.Intake.MaxAttachmentBytes == 0 {
		Conf.Intake.MaxAttachmentBytes = 50 << 20
	}
	if Conf.Intake.RequestsPerSecond == 0 {
		Conf.Intake.RequestsPerSecond = 10
	}
	return nil
}
