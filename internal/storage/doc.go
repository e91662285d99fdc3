// Package storage persists reminders, recurrence rules, pending conversation
// state and delivery dedup keys, and implements the claim ledger the trigger
// scanner and delivery path coordinate through.
//
// Two drivers:
//   - sqlite (modernc.org/sqlite): single node, claims via conditional UPDATE
//   - postgres (lib/pq): multi process, claims via FOR UPDATE SKIP LOCKED
package storage
