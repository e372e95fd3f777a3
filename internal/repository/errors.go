// Package repository persists and queries the auth domain records using
// plain database/sql. Sentinel errors defined here let handlers map
// store failures onto the HTTP error taxonomy without inspecting driver
// errors; anything that is not one of these sentinels is treated as an
// internal failure and surfaces as a generic 500.
package repository

import "errors"

// ErrNotFound is returned when a lookup matches no live row. Handlers
// translate this into 404, or into a generic 401 on credential paths
// where revealing existence would enable account enumeration.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when registration would violate the
// (tenant, email) uniqueness rule among non-deleted profiles. Handlers
// translate this into HTTP 409.
var ErrEmailExists = errors.New("email already exists in tenant")

// ErrConflict is returned when a conditional update lost its race, for
// example consuming an already-used reset token or revoking a key that
// the caller does not own.
var ErrConflict = errors.New("conflict")
