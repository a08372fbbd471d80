// Package gps turns an NMEA byte stream into a single validated position.
//
// It is intentionally small:
// - Decode RMC and GGA lat/lon into a signed Coordinate
// - Frame a byte stream into lines under a hard deadline
// - Open the receiver's UART (termios on Linux, go.bug.st/serial elsewhere)
// - Follow a network NMEA feed over TCP with reconnect
package gps
