// Package influxdb ships node connectivity history to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Two measurements
// are written, both tagged with the node's device identity:
//
//   - node_transition: one point per supervisor state change
//     (tags from/to, field reason)
//   - node_status: periodic samples of the supervisor snapshot
//     (state, colour, loop iterations, disconnects)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTransition("ABCDEF", "link_down", "link_up_session_down", "link acquired", time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched; batch errors are delivered to the SetOnError callback.
package influxdb
