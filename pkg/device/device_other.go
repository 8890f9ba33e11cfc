//go:build !linux

package device

func load() ([]Device, error) {
	return nil, ErrUnsupported
}
