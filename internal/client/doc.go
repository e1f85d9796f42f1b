// Package client is the ohua protocol client.
//
// Every operation is one synchronous exchange on a freshly dialed TCP
// connection: write the request envelope once, read until the server closes,
// decode, close. Nothing is shared between calls except the immutable target
// configuration, so a Client is safe for concurrent use.
package client
