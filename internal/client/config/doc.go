// Package config loads runtime configuration for the filekeeper client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the server, e.g. http://127.0.0.1:8080
//	-t string   bearer token (see "server token <owner>")
//	-o string   directory downloads are written to
//	-b string   bucket for uploads, empty means the server default
//	-w int      request timeout (seconds), 0 disables it
//
// # JSON schema
//
//	{
//	  "server_url": "http://127.0.0.1:8080",
//	  "token": "eyJ...",
//	  "output_dir": "downloads",
//	  "bucket": "",
//	  "request_timeout": "5m"
//	}
package config
