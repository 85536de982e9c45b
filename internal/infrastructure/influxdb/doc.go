// Package influxdb writes device state telemetry to InfluxDB v2.
//
// Every state_changed event becomes one point per capability in the
// device_state measurement, tagged with the device, adapter, area and
// capability. Writes are non-blocking and batched by the client library;
// failures surface through the SetOnError callback.
package influxdb
