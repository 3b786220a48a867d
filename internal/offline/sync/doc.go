// Package sync drains the pending-operation queue against the server.
//
// Overview
//
// Mutations that could not reach the server are kept in the queue (package
// queue). When connectivity returns, the Processor replays them oldest
// first:
//
//	queue (FIFO)                       server
//	   create  temp_1  ──────────────►  POST /inputs        → srv_42
//	   update  temp_1  (now srv_42) ──► PUT  /inputs/srv_42
//	   delete  srv_9   ──────────────►  DELETE /inputs/srv_9
//
// A successful create or image upload remaps the temporary ID to the
// server ID in the cache and in every still-queued operation; when nothing
// else is queued for the item, the server's record replaces the cached one.
// Updates of an item whose create has not landed yet are skipped and stay
// queued. Once that create is abandoned they are abandoned with it.
//
// Update responses go through the cache's conflict rule: the server's
// version replaces the cached one only if it is at least as new.
//
// Failures
//
// An Unauthorized response sets the auth-expired flag and ends the drain.
// A network-level failure ends the drain too, since nothing else can reach
// the server. Any other failure increments the operation's retry count;
// at the retry ceiling the operation is abandoned and reported to the
// Listener.
//
// Usage
//
//	processor := sync.New(api, q, c, nil)
//	result, err := processor.ProcessQueue(ctx)
//	if errors.Is(err, sync.ErrBusy) {
//	    // another drain is running
//	}
package sync
