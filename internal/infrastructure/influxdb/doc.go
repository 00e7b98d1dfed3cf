// Package influxdb provides InfluxDB connectivity for automationd.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, metric writing, and health monitoring.
//
// # Purpose
//
// This package mirrors program execution history as time-series points, so
// dashboards can chart dispatch rate, fault rate, and body duration per
// program over time. SQLite via automation.Repository remains the durable
// record; InfluxDB is a secondary view.
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "automationd",
//	    Bucket:  "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Mirror a completed program execution
//	client.WriteProgramExecution(exec)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
