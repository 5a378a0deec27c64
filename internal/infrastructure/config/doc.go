// Package config loads the homecontrol configuration document.
//
// The document is a YAML mapping from domain name to an arbitrary nested
// value. Domains are independent of each other; each is validated by the
// component that claims it (see internal/domains).
//
// This package manages:
//   - Reading and re-reading the document from disk (FileSource)
//   - The custom YAML tags !env and !include
//   - Decoding an approved domain value onto a typed struct (Decode)
//   - The bootstrap settings (core and logging domains) with defaults,
//     HOMECONTROL_* environment overrides and validation
//
// Security Considerations:
//   - Secrets (broker passwords, InfluxDB tokens) should come from !env tags
//     or environment variables, not from the file itself
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	src := config.FileSource{Path: "configuration.yaml"}
//	doc, err := src.Load()
//	if err != nil {
//	    return err
//	}
//	settings, err := config.LoadSettings(doc)
package config
