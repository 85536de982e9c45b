// Package config handles loading and validating the adapter service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling, including per-adapter list entries
//
// Security Considerations:
//   - MQTT passwords and hub tokens should come from GRAYLOGIC_ADAPTER_<ID>_PASSWORD
//     and GRAYLOGIC_ADAPTER_<ID>_TOKEN rather than the file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, a := range cfg.Adapters {
//	    fmt.Println(a.ID, a.Type)
//	}
package config
