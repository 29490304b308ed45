//go:build linux

package channel

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// saveLineSettings snapshots the terminal attributes of device and returns
// a function that reinstates them
func saveLineSettings(device string) (func() error, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	defer unix.Close(fd)

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("TCGETS: %w", err)
	}

	return func() error {
		fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
		if err != nil {
			return fmt.Errorf("restore %s: %w", device, err)
		}
		defer unix.Close(fd)
		if err := unix.IoctlSetTermios(fd, unix.TCSETS, saved); err != nil {
			return fmt.Errorf("restore %s: TCSETS: %w", device, err)
		}
		return nil
	}, nil
}
