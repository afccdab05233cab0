// Package store provides the session ledger for stranger-relay using SQLite.
//
// # Data Model
//
//   - sessions: one row per joint session with its topics, start and end
//     time, end reason and the side that ended it
//   - settings: key/value rows; "topics" holds the moderator's topic list
//     as a JSON array so it survives restarts
//
// Message text is never written.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// Sessions left open by a previous process are closed with the
// "abandoned" reason when the store is opened.
//
// # Observer
//
// Ledger adapts a Store to relay.Observer so the orchestrator records
// sessions without knowing about SQL. Write failures are logged and never
// reach the relay loop.
package store
