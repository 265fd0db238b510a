// Package exitcodes defines the exit codes used by op-cavy.
package exitcodes

// Exit code constants used by op-cavy:
//
// * Success (0): every case passed, or the collector shut down cleanly
// * TestFailure (1): one or more cases failed
// * RuntimeErr (2): configuration errors, unreadable plans, store failures
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
