package config

import (
	"os"
	"strconv"
	"time"

	"github.com/grabarr/grabarr/internal/store/constants"
)

// Config is process-level configuration, read once from the environment.
// Everything tunable at runtime lives in the system_settings store instead.
type Config struct {
	Address      string
	DataDir      string
	RcdAddress   string
	RcloneBinary string
	ManageRcd    bool
	CORSOrigin   string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func Load() *Config {
	return &Config{
		Address:      envOr("GRABARR_ADDRESS", "0.0.0.0:8000"),
		DataDir:      envOr("GRABARR_DATA_DIR", constants.DbBasePath),
		RcdAddress:   envOr("GRABARR_RCD_ADDRESS", constants.RcdAddress),
		RcloneBinary: envOr("GRABARR_RCLONE_BINARY", "rclone"),
		ManageRcd:    envBool("GRABARR_MANAGE_RCD", true),
		CORSOrigin:   envOr("GRABARR_CORS_ORIGIN", "*"),
		ReadTimeout:  envDuration("GRABARR_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: envDuration("GRABARR_WRITE_TIMEOUT", 0),
		IdleTimeout:  envDuration("GRABARR_IDLE_TIMEOUT", 120*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
