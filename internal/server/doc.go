// Package server exposes the flow engine over HTTP: flow submission, run
// queries, health, metrics, and a websocket stream of run events
package server
