// Package builder provides a Go SDK for flowrun: an immutable flow
// definition builder and an HTTP client for submitting and inspecting runs
package builder
