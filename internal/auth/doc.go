// Package auth implements JWT authentication for the tastethreads API.
//
// # Overview
//
// Requests carry an HS256-signed JWT in the Authorization header. The
// middleware validates the token, extracts the user identity from its
// claims, and attaches it to the request context for handlers to read
// with FromContext.
//
// # Token Claims
//
//   - sub:  user ID (required)
//   - name: display name (optional)
//   - iat:  issued-at timestamp
//   - exp:  expiration timestamp
//
// # Usage
//
// Wrap handlers with the middleware:
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	handler := auth.HTTPAuthMiddleware(verifier)(mux)
//
// Read the identity in a handler:
//
//	id := auth.FromContext(r.Context())
//	if id == nil { ... }
//
// Event stream clients that cannot set headers may pass the token as a
// `token` query parameter instead.
package auth
