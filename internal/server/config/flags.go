package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tunevault/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string      HTTP bind address (e.g., ":8000")
//	-d string      PostgreSQL DSN
//	-s string      JWT HMAC secret key
//	-t int         access token validity, minutes
//	-r int         refresh token validity, minutes
//	-u string      S3 root user
//	-p string      S3 root password
//	-b string      S3 bucket name
//	-g string      S3 region
//	-e string      S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-f string      S3 bucket folder (object key prefix)
//	-o string      public object URL prefix
//	-m int         max upload size, bytes
//	-l int         rate limit, requests per minute per client
//	-env string    environment name ("prod" switches logs to JSON)
//	-log-level     debug|info|warn|error
//
// Only flags defined here are picked out of os.Args (see flagx.ParseOwn), so
// -c/-config for the JSON file does not collide. Durations are whole minutes.
func parseFlags(config *Config) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.S3BucketFolder, "f", config.S3BucketFolder, "S3 bucket folder")
	fs.StringVar(&config.ObjectURLPrefix, "o", config.ObjectURLPrefix, "object URL prefix")
	fs.Int64Var(&config.MaxUploadBytes, "m", config.MaxUploadBytes, "max upload size in bytes")
	fs.IntVar(&config.RateLimitPerMinute, "l", config.RateLimitPerMinute, "requests per minute per client (0 = unlimited)")
	fs.StringVar(&config.Env, "env", config.Env, "environment (dev|prod)")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")

	if err := flagx.ParseOwn(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
