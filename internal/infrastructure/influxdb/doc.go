// Package influxdb writes gateway telemetry to InfluxDB 2.x.
//
// Points written:
//
//	device_signal    device_id        signal=<0-31>
//	device_presence  device_id        online=<bool>
//	command_outcome  kind, status     success=<bool>, count=1
//	inbound_message  device_id        count=1
//
// Writes are batched by the client library and never block the caller.
package influxdb
