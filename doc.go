// Package msgrelay provides a local message relay with pluggable transport and storage backends.
//
// Typical flow:
//  1. Producers call ipc.Submit (or ipc.SubmitTo) to deliver one short text message per connection
//     over a local message-framed channel.
//  2. A Server keeps a fixed pool of listener slots parked on the channel, supervised and
//     respawned on a fixed tick, and appends every received message to an in-memory FIFO queue.
//  3. The forwarder drains the queue into a Store in order; connect failures leave the queue
//     intact for the next tick, rejected writes are dropped as poison messages and logged.
//
// Messages that are still queued when the process exits are lost. Delivery is at-most-once.
//
// For the Unix packet-socket transport and the producer-side Submit see the ipc package.
// For storage backends see the mysql and sqlite packages.
package msgrelay
