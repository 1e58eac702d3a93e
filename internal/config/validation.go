package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg's struct tags and a few cross-field invariants that
// tags alone can't express (each driver must reference a unique listen
// address, every cache must be named).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	seen := make(map[string]bool, len(cfg.Drivers))
	for _, d := range cfg.Drivers {
		if seen[d.Address] {
			return fmt.Errorf("duplicate driver listen address: %s", d.Address)
		}
		seen[d.Address] = true
	}

	return nil
}
