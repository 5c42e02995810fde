package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/flagx"
)

// Flags handled by parseFlags. Exported so cmd/server can tell flags from
// positional arguments.
var Flags = []string{
	"-a", "-g", "-d", "-s", "-v", "-u", "-p", "-b", "-r", "-e", "-k",
	"-R", "-P", "-D", "-t", "-n", "-x", "-i", "-w", "-l",
}

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-v int      issued token validity, minutes
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   default S3 bucket
//	-r string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-k int      chunk size, bytes
//	-R string   Redis address, empty disables the cache
//	-P string   Redis password
//	-D int      Redis database
//	-t int      cache hint TTL, seconds
//	-n int      upload attempts under version contention
//	-x int      presigned link TTL, seconds
//	-i int      health refresh interval, seconds
//	-w int      startup wait timeout, seconds
//	-l string   log level
//
// Duration flags are accepted as integers and converted to time.Duration.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], Flags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	tokenValidity := fs.Int("v", int(config.TokenValidityDuration.Minutes()), "token validity (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "default S3 bucket")
	fs.StringVar(&config.S3Region, "r", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.IntVar(&config.ChunkSize, "k", config.ChunkSize, "chunk size (in bytes)")

	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "Redis address")
	fs.StringVar(&config.RedisPassword, "P", config.RedisPassword, "Redis password")
	fs.IntVar(&config.RedisDB, "D", config.RedisDB, "Redis database")
	cacheTTL := fs.Int("t", int(config.CacheTTL.Seconds()), "cache hint TTL (in seconds)")

	fs.IntVar(&config.UploadRetries, "n", config.UploadRetries, "upload attempts")
	presignTTL := fs.Int("x", int(config.PresignTTL.Seconds()), "presigned link TTL (in seconds)")
	healthInterval := fs.Int("i", int(config.HealthInterval.Seconds()), "health refresh interval (in seconds)")
	startupTimeout := fs.Int("w", int(config.StartupTimeout.Seconds()), "startup wait timeout (in seconds)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.TokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
	config.CacheTTL = time.Duration(*cacheTTL) * time.Second
	config.PresignTTL = time.Duration(*presignTTL) * time.Second
	config.HealthInterval = time.Duration(*healthInterval) * time.Second
	config.StartupTimeout = time.Duration(*startupTimeout) * time.Second
}
