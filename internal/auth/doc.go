// Package auth handles caller authentication for dni-gateway.
//
// Two bearer credentials are accepted on protected endpoints:
//
//   - an ordinary-session JWT (HS256, "sub" claim carries the DNI), for
//     callers coming through the general-purpose session layer
//   - the opaque identity token issued by POST /login-dni/, resolved back to
//     its DNI through the token store
//
// Both arrive as "Authorization: Bearer <value>". The middleware tries JWT
// verification first and falls back to the identity token lookup, then
// attaches the resolved Identity to the request context.
package auth
