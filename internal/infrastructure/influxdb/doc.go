// Package influxdb mirrors message throughput into InfluxDB.
//
// Every handled message becomes one point in the mqtt_messages measurement,
// tagged with the subscription filter that matched it and whether the log
// file append succeeded. Writes use the non-blocking batched write API, so a
// slow or unreachable InfluxDB never holds up the dispatch loop; failures
// arrive asynchronously through SetOnError.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//
//	client.WriteMessage(influxdb.MessagePoint{Filter: "rye/#", Topic: "rye/test", Size: 5, QoS: 1, Persisted: true})
package influxdb
