//go:build !linux

package channel

// saveLineSettings is a no-op where the serial driver restores the port
// itself on close
func saveLineSettings(device string) (func() error, error) {
	return func() error { return nil }, nil
}
