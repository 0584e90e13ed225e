// Package session owns the simulator<->controller wire envelopes.
//
// Ownership boundary:
// - sim.init / sim.init.ack handshake envelopes
// - env.state / env.act step envelopes
// - attach retry/backoff primitives and defaults
//
// Every envelope is a TLV payload inside one frame; containers and spaces
// are nested as codec-encoded byte fields.
package session
