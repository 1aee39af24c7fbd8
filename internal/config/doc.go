// Package config handles configuration loading for sensei-gateway.
//
// # Overview
//
// Configuration is loaded from a YAML file (or TOML, by .toml extension)
// with environment variable expansion, then overlaid with a fixed set of
// environment variables so container deployments need no file at all.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from SENSEI_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/algosensei/gateway.yaml (~/.config when unset)
//
// A .env file in the working directory is loaded first with LoadEnvFile.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  secret_key: "${SENSEI_SECRET}"
//
// # Environment Overrides
//
//	SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES
//	DEBUG, FRONTEND_URL, APP_NAME
//	DATABASE_DRIVER, DATABASE_URL, DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASS
//	OPENAI_API_KEY, LLM_BASE_URL, LLM_MODEL
//	REDIS_ADDR
//
// DB_HOST and friends compose a postgres DSN when DATABASE_URL is unset.
// REDIS_ADDR also switches the session store to redis.
//
// # Configuration Sections
//
//	server:
//	  http_addr: "localhost:8000"
//	  grpc_addr: ""              # optional gRPC health service
//
//	database:
//	  driver: "sqlite"           # sqlite, postgres, memory
//	  path: "algosensei.db"
//	  dsn: ""
//	  max_open_conns: 7
//	  max_idle_conns: 5
//	  conn_max_lifetime: "30m"
//
//	auth:
//	  secret_key: "${SECRET_KEY}" # at least 32 bytes
//	  algorithm: "HS256"          # HS256, HS384, HS512
//	  token_ttl: "24h"
//
//	llm:
//	  base_url: ""                # OpenAI-compatible endpoint
//	  model: "gpt-4o-mini"
//	  timeout: "60s"
//
//	sessions:
//	  store: "memory"             # memory, redis
//	  max_history: 20
//	  ttl: "1h"
//
// Duration values use Go's time.ParseDuration syntax.
package config
