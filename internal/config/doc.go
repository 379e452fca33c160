// Package config loads and validates the nanoclaw configuration.
//
// Configuration lives in a single YAML file, nanoclaw.yaml, looked up in
// the working directory and then in the user config directory. Every scalar
// setting can be overridden from the environment with the NANOCLAW_ prefix,
// for example:
//
//	NANOCLAW_ORCHESTRATOR_DEFAULTTIMEOUT=5s
//	NANOCLAW_METRICS_LISTEN=0.0.0.0:9464
//
// # Layout
//
//	logging:
//	  level: info
//	  format: text
//	orchestrator:
//	  defaultTimeout: 30s
//	  hookTimeout: 30s
//	  defaultComponent: echo
//	  routes:
//	    "memory*": [kv]
//	    echo.upper: [echo]
//	allocator:
//	  memoryMB: 2048
//	  cpuPercent: 100
//	  throughputPerMinute: 100000
//	  nearCapacityRatio: 0.9
//	components:
//	  - id: kv
//	    kind: kv
//	    autoStart: true
//	    quota:
//	      maxConcurrentOperations: 10
//	metrics:
//	  enabled: true
//	  listen: 127.0.0.1:9464
//	storage:
//	  stateDB: data/nanoclaw.db
//	  eventsDir: data/events
//
// Load collects every validation problem at once and returns them inside a
// *ConfigurationError. Watch reloads the file on change so the route table
// can be swapped without a restart. WriteDefault writes a starter file.
package config
