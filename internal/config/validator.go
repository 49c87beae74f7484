// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `Load` calls `validateStruct` immediately after it unmarshals the merged
// Koanf tree.  Any validation error aborts startup, so the binary never
// runs with malformed configuration.  Rules live on the struct tags in
// model.go; cross-field rules that tags cannot express are checked here.

package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = validator.New()

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Payment.KeyID != "" && c.Payment.Currency == "" {
		return fmt.Errorf("payment.currency is required when payment.key_id is set")
	}
	return nil
}
