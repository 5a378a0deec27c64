package domains

import "errors"

var (
	// ErrAlreadyRegistered is returned when a domain is registered twice.
	ErrAlreadyRegistered = errors.New("domains: domain already registered")

	// ErrNotApproved is returned when the domain handler rejects a value.
	ErrNotApproved = errors.New("domains: configuration not approved")
)
