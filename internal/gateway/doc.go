// ABOUTME: Package doc for the HTTP gateway
// ABOUTME: Describes the route surface and component wiring

// Package gateway exposes the identity-verification HTTP surface: identity
// token login, registry lookups proxied with auth negotiation, and the
// passkey registration and authentication ceremonies. It wires the store,
// registry client, session manager, and ceremony service together and owns
// the server lifecycle.
package gateway
