// Package config provides configuration loading for ghlexport.
//
// Configuration is resolved in three layers:
//
//  1. NewDefault: the upstream's documented limits (100-request burst window,
//     200k daily budget) and the retry constants (3 attempts, 5s backoff,
//     10s default retry-after).
//  2. An optional YAML file loaded with LoadFile, supporting ${VAR_NAME}
//     substitution.
//  3. GHL_* environment variables applied by ApplyEnv. LoadDotEnv reads a
//     local .env first so credentials never need to live in the YAML file.
//
// # Usage
//
//	_ = config.LoadDotEnv()
//	cfg, err := config.Load("ghlexport.yaml")
//	if err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// # Example Configuration
//
//	api:
//	  location_id: ${GHL_LOCATION_ID}
//	  requests_per_second: 8
//	export:
//	  dir: exports
//	  compression: zstd
//	  filters:
//	    conversations: [TYPE_EMAIL]
//	store:
//	  type: postgres
//	  dsn: ${DATABASE_URL}
//	  mirrors:
//	    - type: s3
//	      bucket: ghl-backups
//	      region: us-east-1
package config
