// Package auth implements email/password authentication with magic-link email
// verification and stateless access/refresh token sessions.
//
// The flow: Register creates an unverified user and emails a single-use magic
// link. Verify consumes the link, flips the user to verified, and signs them
// in. SignIn checks an email/password pair against the stored argon2id digest.
// SessionIssuer mints HS256 access/refresh token pairs and rotates them; the
// refresh token travels in an HTTP-only cookie.
//
// Storage is bun over any supported SQL driver; the HTTP boundary is a fiber
// controller mounted with RegisterAuthRoutes.
package auth
