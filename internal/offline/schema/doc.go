// Package schema defines the records mirrored by the offline cache and the
// operations recorded in the pending queue.
//
// # Records
//
// Records follow the server's JSON shape (snake_case field names) and carry
// `db` tags for the local store:
//
//   - Item: a text note, link or photo owned by a day (yyyy-MM-dd)
//   - Generation: AI output produced from one day's items
//   - DaySummary: per-day counts shown in the history list
//   - ChannelSetting: per-channel generation defaults
//   - PublishedPost: a post on the public blog
//
// # Temporary IDs
//
// Items created while the server cannot be reached get a client-minted ID of
// the form temp_<uuid>. The ID is replaced by the server's ID when the queued
// create lands:
//
//	id := schema.NewTempID()   // "temp_6f1c..."
//	schema.IsTempID(id)        // true
//
// # Timestamps
//
// Locally minted timestamps are UTC with fixed microsecond precision so that
// they sort the same way as strings and as instants. CompareTimestamps
// compares instants and only falls back to string order for values it
// cannot parse.
//
// # Pending operations
//
// A PendingOperation records one mutation that still has to reach the server.
// The payload is operation specific JSON:
//
//	create               {"type":"text","content":"Buy milk","date":"2025-01-10"}
//	update               {"content":"Buy oat milk"}
//	updateFields         {"importance":3,"include_in_generation":false}
//	uploadImage          {"filename":"photo.jpg"}
//	saveChannelSettings  {"channels":[...]}
//	delete, clearDay     {}
package schema
