//go:build tinygo

package main

import "machine"

const (
	// Relay
	PIN_RELAY = machine.D7

	// Sensor
	PIN_SENSOR_INT    = machine.D2 // TSL2585 INT, open drain, active low
	I2C_FREQUENCY_KHZ = 400
	READ_TIMEOUT_MS   = 2 // NextReading poll timeout inside the main loop

	// Serial configuration
	// Acknowledgement format: "unix_micros,state\n", about 20 bytes.
	// Reading format: "#unix_micros,count,gain,status\n", about 40 bytes, 10 per second.
	UART_BAUD_RATE = 115200
)
