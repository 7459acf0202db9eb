// Package config loads Cellgate Core settings from a YAML file and applies
// CELLGATE_* environment overrides on top.
//
// Secrets (the JWT secret, the device token pepper and provisioning keys)
// belong in the environment rather than the file. Load validates the result,
// so a returned *Config is ready to use:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
package config
