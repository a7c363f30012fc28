// Package webhooks receives wallet agent callbacks, verifies them and hands
// them to a Handler at most once per delivery id.
//
// Delivery processing is driven by a claim lifecycle:
// pending/retry_ready -> processing -> processed|dead.
// A failed handler leaves the delivery retry_ready so a redelivery from the
// agent runs again instead of being deduped.
package webhooks
