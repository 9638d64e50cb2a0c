// Package sink forwards sensor readings out of the process.
//
// A Forwarder subscribes to coordinator snapshots and passes every newly
// fetched set of readings to each configured Sink once: an MQTT broker
// (paho), InfluxDB 2.x, or the local config registry.
package sink
