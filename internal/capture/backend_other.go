//go:build !linux

package capture

// newPlatformBackend returns an error on unsupported platforms
func newPlatformBackend() (Backend, error) {
	return nil, ErrNotSupported
}
