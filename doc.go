// Package ordering turns a conversational waiter's free-form replies into
// structured, priceable restaurant orders and tracks per-conversation state.
//
// The module is the storage and extraction core of a WhatsApp ordering
// assistant. Subpackages:
//
//   - parse: scans an assistant reply for the order-summary section and
//     extracts the structured order.
//   - order: validates the parsed order, recomputes money totals and
//     assigns payment-gateway order identifiers.
//   - session: per-conversation state (history, order snapshot, payment
//     link, quota counters) behind a pluggable store with in-memory and
//     Redis drivers.
//   - quota: sliding-window message limits layered on the session store.
//   - flow: the message-processing pipeline wiring the above against
//     external collaborators (text completion, payment links, delivery).
//   - supabase: menu source and completed-order archive.
//
// Transport, webhook handling and vendor SDK calls live outside this
// module; everything here is callable from any orchestration layer.
package ordering
