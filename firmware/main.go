//go:build tinygo

//go:generate tinygo flash -target=xiao

package main

import (
	"context"
	"machine"
	"time"

	"github.com/itohio/golightmeter/pkg/sensor"
	"github.com/itohio/golightmeter/pkg/settings"
	"github.com/itohio/golightmeter/pkg/transport"
	"github.com/itohio/golightmeter/pkg/tsl2585"
)

var (
	uart = machine.UART0

	relayOn      bool
	serialBuffer [4]byte
	serialPos    int

	ctrl *sensor.Controller
	irq  sensor.InterruptQueue
)

func main() {
	PIN_RELAY.Configure(machine.PinConfig{Mode: machine.PinOutput})
	PIN_RELAY.Low()

	uart.Configure(machine.UARTConfig{
		BaudRate: UART_BAUD_RATE,
	})

	ctrl = startSensor()

	for {
		processSerial()
		if ctrl != nil {
			irq.Forward(ctrl)
			pollSensor()
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// startSensor brings up the light sensor. The relay keeps working without it.
func startSensor() *sensor.Controller {
	machine.I2C0.Configure(machine.I2CConfig{Frequency: I2C_FREQUENCY_KHZ * machine.KHz})
	bus := transport.NewTinyGo(machine.I2C0)

	c := sensor.New(sensor.Options{
		Kind:   settings.KindProbe,
		Driver: tsl2585.New(bus),
		Store:  settings.NewEEPROM(bus),
		Bus:    bus,
	})

	PIN_SENSOR_INT.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	PIN_SENSOR_INT.SetInterrupt(machine.PinFalling, func(machine.Pin) {
		irq.Push(time.Now())
	})

	c.NotifyAttach()
	if err := c.Start(); err != nil {
		println("#sensor start:", err.Error())
		return nil
	}
	if err := c.EnableAGC(sensor.DefaultAGCSamples); err != nil {
		println("#sensor agc:", err.Error())
	}
	if err := c.Enable(sensor.ModeNormal); err != nil {
		println("#sensor enable:", err.Error())
		return nil
	}
	return c
}

func pollSensor() {
	r, err := ctrl.NextReading(context.Background(), READ_TIMEOUT_MS*time.Millisecond)
	if err != nil {
		return
	}
	res := r.Last()

	// Output format: "#unix_micros,count,gain,status\n"
	print("#")
	print(r.At.UnixNano() / 1000)
	print(",")
	print(res.Count)
	print(",")
	print(uint8(res.Gain))
	print(",")
	print(uint8(res.Status))
	print("\n")
}

func processSerial() {
	for uart.Buffered() > 0 {
		data, err := uart.ReadByte()
		if err != nil {
			break
		}

		if data == '\n' || data == '\r' {
			if serialPos == 1 {
				updateRelay(serialBuffer[0] == '1')
			}
			serialPos = 0
			continue
		}

		if data == ' ' || data == '\t' {
			continue
		}

		// Only accept a single '0' or '1' per line
		if (data == '0' || data == '1') && serialPos < len(serialBuffer) {
			serialBuffer[serialPos] = data
			serialPos++
		} else {
			serialPos = 0
		}
	}
}

func updateRelay(on bool) {
	now := time.Now()
	relayOn = on
	if on {
		PIN_RELAY.High()
	} else {
		PIN_RELAY.Low()
	}

	// Output format: "unix_micros,state\n"
	print(now.UnixNano() / 1000)
	if relayOn {
		print(",1\n")
	} else {
		print(",0\n")
	}
}
