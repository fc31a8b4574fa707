package core

// Environment variables read outside of Config.LoadFromEnv's DOCROUTER_* set
const (
	EnvConfigFile     = "DOCROUTER_CONFIG"          // JSON or YAML config file
	EnvMemoryProvider = "DOCROUTER_MEMORY_PROVIDER" // inmemory, redis or sqlite
	EnvDevMode        = "DOCROUTER_DEV_MODE"        // Development mode flag

	// Standard variables honored for container deployments
	EnvRedisURL = "REDIS_URL"
	EnvPort     = "DOCROUTER_PORT"
)

// Well-known HTTP paths
const (
	PathCapabilities = "/api/capabilities"
)
