// Package content serves generated content with graceful degradation.
//
// An Orchestrator wraps a primary generator (usually an LLM call) with a
// write-through cache and a registry of static defaults. Callers always get
// a ContentResult; the Source and IsFallback fields tell them whether to
// show an offline indicator.
//
// Two Cache implementations are provided: MemoryCache for tests and single
// process deployments, and SQLiteCache for persistence across restarts.
// RetentionScheduler purges entries past the retention window on a cron
// schedule.
package content
