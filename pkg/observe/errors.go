// Package observe tracks per-observation state (§3.5) and decides when a
// notification is due (§4.6): attribute inheritance along the path chain,
// pmin/pmax/gt/lt/st/edge evaluation, and composite (multi-path)
// observations sharing one token.
package observe

import "errors"

var (
	// ErrNotFound indicates no observation exists for the given token.
	ErrNotFound = errors.New("observe: observation not found")

	// ErrAlreadyExists indicates an observation with this (ssid, token,
	// path) is already tracked; a new Observe request with a reused token
	// must cancel the old one first.
	ErrAlreadyExists = errors.New("observe: observation already exists")

	// ErrTooManyQueued reports a full notification queue. Record.PushQueued
	// does not return it: once hqmax is reached it evicts the oldest queued
	// notification itself.
	ErrTooManyQueued = errors.New("observe: notification queue full")
)
