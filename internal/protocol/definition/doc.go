// Package definition describes protocols as data.
//
// A Protocol is a set of declared states and messages plus a list of Steps.
// A Step fires when an instance is in its From state, receives a message of
// type On, and the message arrived over a channel its Requirement accepts.
// Initial, Final and Cancelled are reserved states shared by every protocol:
// instances start in Initial and are removed once they reach Final or
// Cancelled.
//
// NewRegistry rejects protocols where two steps could fire for the same
// triple; Match panics if that ever happens at runtime.
package definition
