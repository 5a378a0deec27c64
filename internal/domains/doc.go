// Package domains mediates access to the configuration document.
//
// Each top-level key of the document is a domain. A component claims a
// domain once with Register and receives its approved value: validated
// and coerced by the domain's schema, then accepted by the handler's
// optional approval hook. Only an explicit Reject verdict aborts; a
// handler that abstains, or implements no hook, approves implicitly.
//
// # Reload
//
// Reload re-reads the source and compares every domain's raw value with
// the previous raw value. For changed domains:
//   - unregistered domains adopt the new raw value
//   - domains registered without AllowReload are logged and skipped; the
//     previous value keeps running
//   - reloadable domains run the approval protocol again, then the
//     handler's Applier hook, then the cached value is updated
//
// Domains reload independently; one failure never blocks another.
//
// # Errors
//
//   - ErrAlreadyRegistered: second Register for a domain
//   - schema failures: errors.Is(err, schema.ErrInvalid)
//   - ErrNotApproved: the handler returned Reject
package domains
