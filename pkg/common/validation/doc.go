// Package validation provides common validation utilities for configuration
// parameters across the sloq library.
//
// Every validator returns a *errors.ValidationError, which unwraps to
// errors.ErrInvalidArgument.
package validation
