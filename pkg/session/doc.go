// Package session keeps bounded, expiring chat conversations in memory.
//
// Each session holds at most MaxMessages messages (oldest dropped first) and
// is treated as absent once idle for longer than SessionTimeout. Expired
// sessions are removed lazily on access and periodically by a Sweeper.
//
// Sessions are per process by design: they are not replicated and do not
// survive restarts.
package session
