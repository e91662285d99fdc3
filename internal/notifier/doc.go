// Package notifier provides the async pipeline for out-of-band sends:
// delivery-failure notices, expired-dialog notices, anything the bot pushes
// without an inbound message to answer. A bounded queue feeds a worker pool
// behind a shared rate limit, retry with jittered backoff, and a short dedup
// window that suppresses identical notices fired in quick succession.
//
// Reminder deliveries deliberately do not use this pipeline: a delivery must
// complete while its claim is held, so the engine sends those inline. Dialog
// replies also skip it, because the dedup window would swallow repeated
// prompts like "AM or PM?".
package notifier
