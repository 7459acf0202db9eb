// Package auth covers the two credentials Cellgate Core deals with.
//
// Dashboard clients present an HS256 JWT (when security.jwt.enabled) whose
// role decides whether they may only watch (viewer) or also issue telephony
// commands (operator).
//
// Devices authenticate in-band with a connect token. Only its peppered
// Argon2id hash (HashDeviceToken) is stored, which keeps lookups
// deterministic while a leaked database does not reveal usable tokens.
package auth
