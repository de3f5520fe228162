// Package timeouts defines shared timeout constants used across services.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// ActorCall caps a single request forwarded to an actor.
const ActorCall = 10 * time.Second

// StorageFlush caps how long shutdown waits for pending actor writes.
const StorageFlush = 5 * time.Second

// Background caps a detached job such as sending a verification email.
const Background = 30 * time.Second
