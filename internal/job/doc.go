// Package job runs persisted background work. Jobs are saved before they are
// queued, so a restart recovers anything left pending or processing. The
// Scheduler triggers the daily sweep and distribution in process.
package job
