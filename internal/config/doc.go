// Package config loads the regionshm configuration with viper: defaults, an
// optional YAML file and REGIONSHM_* environment overrides.
//
// Example file:
//
//	buffer:
//	  len: 100
//	  regions: 10
//	supervisor:
//	  tick: 1s
//	  ceiling: 130s
//	workers:
//	  - op: max
//	    cadence: 3s
//	    pause: 80ms
//	    lifetime: 60s
//	    regions: [0, 3, 6]
package config
