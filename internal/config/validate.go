package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is shared; validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return c.Detection.Validate()
}

// Validate checks detection parameters.
func (d Detection) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid detection config: %w", err)
	}
	return nil
}
