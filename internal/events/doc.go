// Package events connects the hub's broadcast bus to the outside world.
//
// Each sink gets its own bus subscription through Pump, so a slow broker or
// time-series write never delays dashboard clients or other sinks:
//
//   - MQTTMirror republishes every event to {prefix}/event/{type} and keeps
//     a retained presence message per device.
//   - Telemetry writes signal quality, presence changes and command
//     outcomes to InfluxDB.
//
// RequestBridge is the inbound direction: requests published to
// {prefix}/request/{action} are served by the hub and answered on
// {prefix}/response/{id}.
package events
