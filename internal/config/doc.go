// Package config handles configuration loading for tastethreads.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and duration parsing.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${TASTETHREADS_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	booking:
//	  sweep_interval: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"   # API and event stream
//
// Database:
//
//	database:
//	  path: "/var/lib/tastethreads/tastethreads.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${TASTETHREADS_JWT_SECRET}"
//
// Discovery and booking provider:
//
//	provider:
//	  base_url: "https://provider.example.com"
//	  api_key: "${PROVIDER_API_KEY}"
//	  test_mode: false     # canned booking provider, search stays live
//
// Model planner:
//
//	gemini:
//	  api_key: "${GEMINI_API_KEY}"
//	  model: "gemini-2.0-flash"
//
// Agent behavior:
//
//	agent:
//	  cadence: 5
//	  aliases: ["tess", "ai", "yelp"]
//	  context_budget: 4096
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load("/etc/tastethreads/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
