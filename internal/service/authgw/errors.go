package authgw

import "errors"

// Common auth gateway errors.
var (
	// ErrAuth indicates the credential is missing, malformed, or rejected
	// by the gateway. Transport and decoding failures also map here: a
	// request that cannot be verified is treated as unauthenticated.
	ErrAuth = errors.New("authentication failed")

	// ErrPermission indicates the credential is valid but lacks the
	// required resource/action right.
	ErrPermission = errors.New("permission denied")
)
