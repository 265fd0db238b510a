// Package runner executes cavy test suites against a host.
//
// Suites and their cases run strictly in input order, one at a time. Every
// case goes through the same isolation protocol:
//
//  1. the host's persisted state is cleared
//  2. the suite's BeforeEach hook runs, if any
//  3. the host is re-rendered
//  4. the case body runs
//
// An error or panic anywhere in that sequence fails the case it belongs to
// and is recorded under the case's description; the run always moves on to
// the next case. A setup hook failure is therefore indistinguishable from a
// body failure in the report.
//
// Once all suites finish, a types.Report is built and handed to the
// configured reporter unless reporting was switched off.
//
// There is no cancellation: the start delay, host calls and case bodies are
// always awaited, and a body that never returns stalls the run. The context
// given to Run is forwarded to the host, hooks, bodies and the reporter so
// they can scope their own work.
package runner
