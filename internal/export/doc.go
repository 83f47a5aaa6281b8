// Package export turns finalized call sessions into uploaded recordings.
// Finalized sessions are queued on a bounded channel and consumed by a fixed pool of
// workers, each of which encodes the call as WAV, optionally spools it to disk, and
// delivers it to Rdio Scanner. A slow or failing upload only occupies its own worker.
package export
