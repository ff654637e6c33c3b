// Package auth verifies access tokens for the Edge Core API.
//
// Token issuance lives in the account service; this package only answers
// "who is the caller" from a bearer token. Tokens are HS256-signed JWTs
// validated by signature and expiry alone, no database hit.
package auth
