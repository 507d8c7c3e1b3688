// Package config loads and validates the group server's environment-driven
// configuration. Validate accumulates every missing or malformed field
// before returning, rather than stopping at the first — so an operator
// fixing a broken deployment sees the whole list in one pass instead of
// playing whack-a-mole with one error at a time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the fully-resolved, validated configuration for one group
// server process.
type Config struct {
	GroupID uint32

	GoogleCloudRegion string
	GoogleCloudBucket string
	GoogleAccessKey   string
	GoogleSecretKey   string

	RedisURL             string
	RedisConnectionCount int
	WorkerCount          int
	ZMQMode              bool
	ListenAddr           string
	ForwardAddr          string
	ReplyAddr            string

	HealthAddr string
	LogLevel   string
}

const (
	defaultRedisConnectionCount = 8
	defaultWorkerCount          = 4
	defaultLogLevel             = "info"
)

// FromEnv reads the process environment into a Config. It applies defaults
// for optional fields but does not validate — call Validate separately so
// callers can decide whether a malformed config is fatal.
func FromEnv() Config {
	cfg := Config{
		GoogleCloudRegion:    os.Getenv("GOOGLE_CLOUD_REGION"),
		GoogleCloudBucket:    os.Getenv("GOOGLE_CLOUD_BUCKET"),
		GoogleAccessKey:      os.Getenv("GOOGLE_ACCESS_KEY"),
		GoogleSecretKey:      os.Getenv("GOOGLE_SECRET_KEY"),
		RedisConnectionCount: defaultRedisConnectionCount,
		WorkerCount:          defaultWorkerCount,
		ListenAddr:           os.Getenv("LISTEN_ADDR"),
		ForwardAddr:          os.Getenv("FORWARD_ADDR"),
		ReplyAddr:            os.Getenv("REPLY_ADDR"),
		HealthAddr:           os.Getenv("HEALTH_ADDR"),
		LogLevel:             defaultLogLevel,
	}

	if v := os.Getenv("GROUP_ID"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.GroupID = uint32(n)
		}
	} else if host := os.Getenv("HOSTNAME"); host != "" {
		parts := strings.Split(host, "-")
		if len(parts) >= 2 {
			if n, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
				cfg.GroupID = uint32(n)
			}
		}
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		if host := os.Getenv("REDIS_SERVICE_HOST"); host != "" {
			cfg.RedisURL = fmt.Sprintf("redis://%s:6379", host)
		}
	}

	if v := os.Getenv("REDIS_CONNECTION_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RedisConnectionCount = n
		}
	}
	if v := os.Getenv("WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.WorkerCount = n
		}
	}
	if v := os.Getenv("ZMQ_MODE"); v != "" {
		b, err := strconv.ParseBool(v)
		cfg.ZMQMode = err == nil && b
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg
}

// Validate reports every problem with cfg at once via errors.Join, rather
// than failing fast on the first missing field.
func (c Config) Validate() error {
	var errs []error

	if c.GoogleCloudBucket == "" {
		errs = append(errs, errors.New("config: GOOGLE_CLOUD_BUCKET is required"))
	}
	if c.GoogleAccessKey == "" {
		errs = append(errs, errors.New("config: GOOGLE_ACCESS_KEY is required"))
	}
	if c.GoogleSecretKey == "" {
		errs = append(errs, errors.New("config: GOOGLE_SECRET_KEY is required"))
	}
	if c.RedisURL == "" {
		errs = append(errs, errors.New("config: REDIS_URL (or REDIS_SERVICE_HOST) is required"))
	}
	if c.RedisConnectionCount <= 0 {
		errs = append(errs, errors.New("config: REDIS_CONNECTION_COUNT must be positive"))
	}
	if c.WorkerCount <= 0 {
		errs = append(errs, errors.New("config: WORKER_COUNT must be positive"))
	}
	if c.ListenAddr == "" {
		errs = append(errs, errors.New("config: LISTEN_ADDR is required"))
	}
	if c.ForwardAddr == "" {
		errs = append(errs, errors.New("config: FORWARD_ADDR is required"))
	}
	if c.ReplyAddr == "" {
		errs = append(errs, errors.New("config: REPLY_ADDR is required"))
	}

	return errors.Join(errs...)
}
