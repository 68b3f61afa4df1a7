// Package monarch holds the types shared across the single-instance host:
// the validated Identity that names an application on the host, and the
// activation Envelope a secondary launch forwards to the primary.
//
// Process coordination lives in package instance, service lifecycle in
// package host.
package monarch
