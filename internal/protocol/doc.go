// Package protocol owns the ohua wire contract and its codecs.
//
// Ownership boundary:
// - operation tags and the request envelope
// - qualified record keys
// - read (JSON) and mutation (text) response decoding
// - caller value coercion to wire strings
//
// The wire carries no framing: a request is one JSON object written once, and a
// response is every byte the server sends before closing the connection.
package protocol
