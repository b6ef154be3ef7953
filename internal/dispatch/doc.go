// Package dispatch turns logical messages into envelopes and back.
//
// Contents
//
//   - Selectors, a closed tagged union naming who a message goes to
//     (PointToPoint, AllConfirmedChannelsWithContact,
//     AllConfirmedChannelsWithOwnOtherDevices, Broadcast, Asymmetric, Local,
//     ServerQuery)
//   - Wrap: resolves a selector, draws one message key per envelope, wraps it
//     once per recipient device and groups recipients by home server
//   - Unwrap: opens the header addressed to this device and yields the
//     logical message with its reception channel
//   - The outbox (Enqueue, Pending, Dequeue) and Post, which hands queued
//     envelopes to a network collaborator
package dispatch
