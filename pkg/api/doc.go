// Package api defines the core data types and interfaces for the flow runner
//
// This package contains the shared types used across the engine, including
// flow definitions, the task contract, persisted run records, run events,
// and HTTP messages
package api
