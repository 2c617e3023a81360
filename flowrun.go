// Package flowrun executes declaratively defined task graphs, advancing
// them frontier by frontier with conditional fan-out and fan-in
package flowrun

const (
	// Name is the service name reported in logs and health responses
	Name = "flowrun"

	// Version is the service version
	Version = "0.1.0"
)
