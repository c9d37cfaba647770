// Package archive hands finalized canvases to external storage.
//
// Handoff turns a canvas.Snapshot into an encoded image, names it and passes it to a
// Store. Stores are interchangeable backends (an HTTP upload endpoint, Google Cloud
// Storage, Postgres, a local directory or memory). SaveHandler serves the client-side
// save endpoint on top of the same Store.
package archive
