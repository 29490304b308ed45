package channel

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// SerialConfig configures a serial port channel
type SerialConfig struct {
	Device      string          // e.g. /dev/ttyS0, /dev/ttyUSB0, COM3
	BaudRate    int             // Default 38400
	DataBits    int             // Default 8
	Parity      serial.Parity   // Default none
	StopBits    serial.StopBits // Default one
	ReadTimeout time.Duration   // Poll granularity of the reader goroutine
}

// DefaultSerialConfig returns 38400 8N1 for device
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:      device,
		BaudRate:    38400,
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// SerialChannel implements ByteChannel over a serial port in raw mode
type SerialChannel struct {
	*StreamChannel

	config SerialConfig
	port   serial.Port
}

// IsSerialDevice reports whether id names a serial device rather than a
// network address
func IsSerialDevice(id string) bool {
	upper := strings.ToUpper(id)
	return strings.HasPrefix(id, "/dev/") || strings.HasPrefix(upper, "COM") || strings.HasPrefix(id, `\\.\`)
}

// NewSerialChannel opens and configures the serial port. The device's
// previous line settings are captured first and put back by Close.
func NewSerialChannel(config SerialConfig) (*SerialChannel, error) {
	if config.Device == "" {
		return nil, fmt.Errorf("device is required")
	}

	// Set defaults
	defaults := DefaultSerialConfig(config.Device)
	if config.BaudRate == 0 {
		config.BaudRate = defaults.BaudRate
	}
	if config.DataBits == 0 {
		config.DataBits = defaults.DataBits
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}

	restore, err := saveLineSettings(config.Device)
	if err != nil {
		return nil, fmt.Errorf("save settings of %s: %w", config.Device, err)
	}

	port, err := serial.Open(config.Device, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   config.Parity,
		StopBits: config.StopBits,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", config.Device, err)
	}

	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", config.Device, err)
	}

	// Discard anything queued before the link existed
	if err := errors.Join(port.ResetInputBuffer(), port.ResetOutputBuffer()); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", config.Device, err)
	}

	sc := &SerialChannel{
		StreamChannel: NewStreamChannel("serial:"+config.Device, port),
		config:        config,
		port:          port,
	}
	sc.addCleanup(restore)
	return sc, nil
}

// Config returns the configuration the port was opened with
func (sc *SerialChannel) Config() SerialConfig {
	return sc.config
}

// Drain waits until all written bytes have been transmitted
func (sc *SerialChannel) Drain() error {
	return sc.port.Drain()
}
