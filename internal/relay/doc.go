// Package relay provides the network collaborators the engine posts
// envelopes to and devices fetch them from.
//
// Memory keeps per-device queues in process and is used by tests and by the
// CLI when no redis address is configured. Redis stores envelopes as
// expiring blobs and keeps one list per recipient device holding references
// to them, so an envelope addressed to several devices is stored once.
//
// Both relays hand out one Inbound per header: the envelope together with
// the index of the header addressed to the fetching device. Fetch never
// removes anything; Ack drops the first count entries once the caller has
// durably processed them.
package relay
