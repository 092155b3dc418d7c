// Package ceremony drives the passkey registration and authentication
// ceremonies.
//
// Each ceremony is two-phase: an options request issues a fresh random
// challenge (held in the caller's session, one per purpose), and a verify
// request consumes it. Consumption is unconditional: the challenge is erased
// whether verification succeeds or fails, so a challenge can never be
// redeemed twice.
//
// Verification is real, not a placeholder: the client data's challenge echo
// must match the issued value, the authenticator data must carry the relying
// party hash the challenge was issued under, attested public keys must parse
// as COSE keys, assertions are signature-checked against the stored key over
// authenticatorData || SHA-256(clientDataJSON), and sign counters must
// increase whenever the authenticator uses them.
package ceremony
