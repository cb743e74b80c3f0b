// Package auth handles CompliAI access tokens.
//
// # Tokens
//
// Access tokens are HS256 JWTs with the claims the backend has always used:
//
//   - user_id: the user's identifier (required)
//   - email, role: informational
//   - exp: expiry (default lifetime seven days)
//
// The backend signs and verifies them with a JWTIssuer:
//
//	issuer, err := auth.NewJWTIssuer(secret, 0)
//	token, err := issuer.Generate(user.ID, user.Email, user.Role)
//	claims, err := issuer.Verify(token)
//
// Clients never hold the secret. They use InspectToken to read the exp claim
// of a cached token without verifying it, and Fingerprint to log tokens
// safely. Whether a token is still accepted is always decided by the server.
//
// # HTTP
//
// BearerMiddleware extracts "Authorization: Bearer <token>", verifies it and
// stores the claims in the request context (FromContext). Failures are
// answered with 401 and a {"detail": "..."} body.
package auth
