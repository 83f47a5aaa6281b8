// Package session provides the call session registry.
// It maps each (source, destination) call identity to the PCM buffer of the call in
// progress, creating sessions on the first voice frame and handing them off exactly
// once when the call's channel is released.
package session
