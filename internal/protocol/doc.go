// Package protocol owns the wire contract shared by simulator and controller.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - tlv payload primitives (tlv)
// - message and field ids with required-field validation (schema)
// - container and space payload encoding (codec)
// - init/state/action envelopes (session)
//
// This package only carries the error taxonomy used by all of the above.
package protocol
