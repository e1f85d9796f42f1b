// Package binding adapts the protocol client to a benchmark harness contract:
// every operation returns a Status and never lets an error or panic escape.
package binding
