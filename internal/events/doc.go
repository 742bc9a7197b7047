// Package events carries domain events between components without coupling them.
//
// Services emit events after their transactions commit. Handlers registered on an
// emitter react to them: the job factory turns user registrations into background
// jobs, and the Redis publisher fans settlement events out to other consumers.
// The AsyncDispatcher moves delivery off the request path so emitting never blocks
// a settlement.
package events
