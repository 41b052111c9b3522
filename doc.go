// Package identity manages the account lifecycle of a flight booking
// platform: registration, local and external login, lockout, email
// confirmation, password reset, profile maintenance, deactivation, and API
// token issuance.
//
// Account lifecycle:
//   - Accounts carry an active flag, an email confirmation flag, and lockout
//     counters that are persisted via Bun. A deactivated account is retired,
//     not deleted, and rejects every login path.
//   - Manager centralizes the lifecycle decisions. It owns lockout handling,
//     the confirmation and reset token flows, and the external login
//     resolution order (linked identity, then email match, then account
//     creation).
//
// Single-use tokens:
//   - Email confirmation and password reset are driven by opaque single-use
//     tokens. A token is bound to one account and one purpose, expires after
//     a threshold window, and is consumed in the same transaction that
//     applies its effect, so a raced duplicate submission cannot redeem it
//     twice.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Manager to
//     describe registration, login, lockout, and account change events.
//     Sinks run best-effort (errors are logged) so you can forward to a
//     database or queue without blocking authentication.
//
// API tokens:
//   - TokenIssuer exchanges valid credentials for short-lived HS256 bearer
//     tokens whose subject is the account email. Inactive and locked-out
//     accounts are refused uniformly with ErrUnauthorized.
package identity
