// Package creds extracts raw, unvalidated credentials from inbound requests.
//
// Extraction is pure string plumbing: it finds the highest-precedence bearer
// string a request carries and reports where it came from. It never validates,
// never decodes, and never fails; a request without any credential resolves to
// SourceNone rather than an error.
package creds
