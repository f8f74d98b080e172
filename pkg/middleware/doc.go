// Package middleware provides the HTTP request plumbing in front of the
// access control engine.
//
// # Components
//
//   - IdentityMiddleware: resolves the gateway-authenticated identity and
//     attaches it to the request context
//   - RequestIDMiddleware: assigns a correlation ID to every request
//   - RequirePermission: denies requests lacking a matrix grant for the
//     route's action and resource
//   - RateLimiter / DistributedRateLimiter: per-identity request limits,
//     in-process or Redis-backed
//
// Ordering matters: RequestIDMiddleware first, then IdentityMiddleware,
// then rate limiting, then RequirePermission on protected routes.
package middleware
