// Package ipc implements the stdio protocol spoken with the recognition engine.
//
// A request is written to the engine's stdin exactly once as a length-delimited
// frame:
//
//	<decimal-byte-length>\n<json-bytes>
//
// stdin stays open afterwards so that a later
//
//	CANCEL\n
//
// line can still be delivered. The engine writes a single document to stdout
// before exiting: either an array of boxes or {"error": "..."}. Exit code 2
// acknowledges a cancellation.
package ipc
