// Package rdio implements the HTTP client for the Rdio Scanner call-upload API.
// It submits one finished call recording per request as multipart form data and
// reports the outcome; retrying is left to the caller.
package rdio
