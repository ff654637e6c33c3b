package auth

import "errors"

// ErrTokenInvalid is returned for tokens that are malformed, expired,
// wrongly signed, or missing required claims.
var ErrTokenInvalid = errors.New("invalid token")
