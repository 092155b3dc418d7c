// Package config handles configuration loading for dni-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	registry:
//	  token: "${RENIEC_TOKEN}"
//
// Syntax: ${VAR_NAME}
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/dni-gateway/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${DNI_GATEWAY_JWT_SECRET}"  # enables ordinary-session bearer JWTs
//
// External identity registry:
//
//	registry:
//	  url: "https://api.example.pe/v1/dni"
//	  token: "${RENIEC_TOKEN}"
//	  timeout: "20s"   # per-attempt timeout
//
// Passkey ceremonies:
//
//	webauthn:
//	  rp_display_name: "dni-gateway"
//	  base_url: "https://verify.example.pe"
//	  ceremony_timeout: "60s"
//	  session_ttl: "30m"
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
