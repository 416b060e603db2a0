// Package influxdb mirrors relay events into an InfluxDB v2 bucket.
//
// Every broker connection change and sensor event becomes one point of the
// doorbell_events measurement, tagged with its kind ("connection" or
// "sensor") and value. Writes go through the library's non-blocking batch
// API, sized by influxdb.batch_size and influxdb.flush_interval.
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteSensorEvent("ping", time.Now())
//
// The export is optional: Connect returns ErrDisabled when it is turned off
// and write calls on a closed client are dropped.
package influxdb
