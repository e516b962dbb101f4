// Package config handles configuration loading for coven-chat.
//
// # Overview
//
// Configuration is loaded from YAML (or TOML, by .toml extension) with
// environment variable expansion. Unset values take defaults, then the
// result is validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COVEN_CHAT_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coven/chat.yaml
//  3. ~/.config/coven/chat.yaml
//
// # Environment Variable Expansion
//
//	database:
//	  uri: "${RUSTY_MONGODB_URI}"
//
// Unset variables expand to the empty string, which then takes the default.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:1342"
//	  request_timeout: "10s"
//	  max_body_bytes: 1048576
//
//	database:
//	  driver: "mongo"            # or "sqlite"
//	  uri: "mongodb://localhost:27017"
//	  name: "rusty_chat"
//	  collection: "chat_data"
//	  users_database: "baakey_dev_rusty"
//	  users_collection: "users"
//	  app_name: "core-rusty-api"
//	  path: ""                   # sqlite only
//	  connect_timeout: "10s"
//
//	counter:
//	  backend: "memory"          # or "redis"
//	  redis_url: ""
//	  window: "1m"
//	  max_keys: 10000
//	  max_per_window: 0          # 0 disables limiting
//
//	logging:
//	  level: "info"              # debug, info, warn, error
//	  format: "text"             # or "json"
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
package config
