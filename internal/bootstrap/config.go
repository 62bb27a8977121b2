package bootstrap

import (
	"log"

	"github.com/scribehub/scribegate/internal/config"
)

// validateConfiguration validates all configuration settings before any
// infrastructure is touched
func validateConfiguration(cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
}
