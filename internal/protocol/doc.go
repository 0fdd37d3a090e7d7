// Package protocol owns the envelope wire contract.
//
// Ownership boundary:
// - kind/status tags and their tagged wrapper wire form
// - envelope marshal/unmarshal
// - recursive payload decoding (tag recognition, nested JSON unwrap)
package protocol
