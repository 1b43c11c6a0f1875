// Package gps is the position source: it reads a GNSS receiver either
// directly (NMEA over the Pi UART) or through gpsd, and publishes each
// accepted fix into the shared environment. The receiver is optional
// hardware; when it is missing or failing the service retries forever
// and the position simply stays stale.
package gps
