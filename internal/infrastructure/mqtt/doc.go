// Package mqtt connects the gateway to an MQTT broker.
//
// The hub uses MQTT as an optional side channel: broadcast events are
// mirrored to {prefix}/event/{type}, device presence is retained at
// {prefix}/device/{id}/presence, and requests published to
// {prefix}/request/{action} are answered on {prefix}/response/{id}. The
// hub's own status is retained at {prefix}/system/status, with a last will
// that flips it to offline if the process dies.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishRetained(client.Topics().DevicePresence(id), payload)
package mqtt
