package models

import "errors"

// ErrLinkNotFound is returned for any portal token that does not resolve to
// a currently valid link. Expired, revoked, and never-issued tokens are
// deliberately indistinguishable to callers.
var ErrLinkNotFound = errors.New("portal link not found")

// ErrNotConfirmable is returned when a confirmation targets a payment that
// does not exist in scope or is already in a terminal status.
var ErrNotConfirmable = errors.New("payment is not in a confirmable status")
