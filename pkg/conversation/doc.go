// Package conversation runs tutor chat turns.
//
// A turn passes through four stages:
//
//  1. The rate limiter admits or denies the caller ("<scope>:<owner>").
//  2. The session manager resumes the session or opens a new one.
//  3. The fallback orchestrator asks the model for a reply through the
//     circuit breaker and retry engine, falling back to cached and then
//     static replies.
//  4. Both messages are appended to the session.
//
// Only invalid requests and quota denials are returned as errors; every
// other failure produces a degraded but usable reply.
package conversation
