package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/flagx"
	"github.com/dmitrijs2005/filekeeper/internal/timex"
)

// JsonConfig is the JSON file shape of Config. Durations use timex.Duration,
// so both "15m" and integer nanoseconds are accepted. Fields absent from the
// file keep their current value.
type JsonConfig struct {
	EndpointAddrHTTP      string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC      string         `json:"endpoint_addr_grpc"`
	DatabaseDSN           string         `json:"database_dsn"`
	SecretKey             string         `json:"secret_key"`
	TokenValidityDuration timex.Duration `json:"token_validity_duration"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
	ChunkSize             int            `json:"chunk_size"`
	RedisAddr             *string        `json:"redis_addr"`
	RedisPassword         string         `json:"redis_password"`
	RedisDB               int            `json:"redis_db"`
	CacheTTL              timex.Duration `json:"cache_ttl"`
	UploadRetries         int            `json:"upload_retries"`
	PresignTTL            timex.Duration `json:"presign_ttl"`
	HealthInterval        timex.Duration `json:"health_interval"`
	StartupTimeout        timex.Duration `json:"startup_timeout"`
	LogLevel              string         `json:"log_level"`
}

// parseJson overlays values from the JSON file named by -c or -config.
// Without either flag nothing is loaded. An unreadable file or invalid JSON
// panics, like a bad flag does.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidityDuration, c.TokenValidityDuration)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setInt(&config.ChunkSize, c.ChunkSize)
	// an explicit "" turns the cache off
	if c.RedisAddr != nil {
		config.RedisAddr = *c.RedisAddr
	}
	setString(&config.RedisPassword, c.RedisPassword)
	setInt(&config.RedisDB, c.RedisDB)
	setDuration(&config.CacheTTL, c.CacheTTL)
	setInt(&config.UploadRetries, c.UploadRetries)
	setDuration(&config.PresignTTL, c.PresignTTL)
	setDuration(&config.HealthInterval, c.HealthInterval)
	setDuration(&config.StartupTimeout, c.StartupTimeout)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
