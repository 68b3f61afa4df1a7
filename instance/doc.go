// Package instance coordinates single-instance applications.
//
// A Coordinator decides at construction whether this process is the primary
// holder of an Identity. A secondary forwards its command line to the
// primary over a named channel (SendAndRedirect) and exits; the primary runs
// a Receiver that republishes each forwarded Envelope on the event bus.
package instance
