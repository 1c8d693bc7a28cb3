package main

import (
	"errors"
	"fmt"

	"go.bug.st/serial"
)

// ErrNoSerialPort is returned when no port is configured and the OS reports none.
var ErrNoSerialPort = errors.New("no serial port found")

// openSerialPort opens the configured port (or the first one the OS lists)
// with the read timeout that makes Read return (0, nil) on idle.
func openSerialPort(cfg SerialConfig) (serialPort, string, error) {
	name := cfg.Port
	if name == "" {
		ports, err := serial.GetPortsList()
		if err != nil {
			return nil, "", fmt.Errorf("list serial ports: %w", err)
		}
		if len(ports) == 0 {
			return nil, "", ErrNoSerialPort
		}
		name = ports[0]
	}

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, name, fmt.Errorf("open serial port %s: %w", name, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout()); err != nil {
		return nil, name, errors.Join(fmt.Errorf("set read timeout: %w", err), port.Close())
	}
	if cfg.DTR {
		if err := port.SetDTR(true); err != nil {
			return nil, name, errors.Join(fmt.Errorf("set DTR: %w", err), port.Close())
		}
	}
	return port, name, nil
}
