// Package ipc provides the local transport for msgrelay: a Unix SOCK_SEQPACKET endpoint.
//
// Packet sockets preserve message boundaries, so every producer write arrives as one
// discrete unit and no length prefix is needed. Each connection carries exactly one message.
//
// Server side, Listen creates the endpoint (a msgrelay.Channel). Every pool slot calls
// Channel.Listen to bind an instance, and all instances share the same kernel listener,
// which hands each incoming connection to whichever slot is parked in Accept. Closing the
// Channel unblocks every parked slot, so shutdown needs no fake client connections.
// The accept backlog is bounded (WithBacklog): once every slot is busy and the backlog is
// full, producers are refused instead of queueing in the kernel.
//
// Producer side, Submit and SubmitTo connect with a bounded timeout and write one message.
// A successful submit only means the message reached the endpoint; it says nothing about
// persistence.
package ipc
