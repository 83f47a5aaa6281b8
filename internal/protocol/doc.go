// Package protocol implements the message codec spoken with the WhackerLink master.
// Every frame is a JSON envelope {"type": ..., "data": {...}}; this package parses the
// inbound voice and channel-release messages and encodes the outbound affiliation and
// authentication requests.
package protocol
