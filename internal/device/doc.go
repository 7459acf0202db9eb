// Package device holds the GSM gateway devices known to Cellgate Core.
//
// A Device is created the first time a provisionable connect token
// authenticates. Afterwards the hub mutates it on connect, heartbeat and
// disconnect; it is never deleted by the hub.
//
// Presence (Online, LastSeen) is persisted for the REST API, but the
// authoritative answer to "is this device reachable right now" is the hub's
// in-memory registry of live connections. On startup MarkAllOffline clears
// flags left behind by an unclean shutdown.
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	d, err := repo.GetByTokenHash(ctx, hash)
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // unknown token
//	}
package device
