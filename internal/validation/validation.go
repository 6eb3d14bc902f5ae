// Package validation wraps the shared struct-tag validator used to check
// Program and CustomConfig payloads arriving over the WS and HTTP surfaces.
package validation

import "github.com/go-playground/validator/v10"

var instance = validator.New()

// Struct validates v's `validate` struct tags, returning the validator's
// error (covering every failing field) unchanged, or nil.
func Struct(v interface{}) error {
	return instance.Struct(v)
}
