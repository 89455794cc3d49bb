//go:build linux && !cgo

package capture

// newPlatformBackend returns an error on Linux when built without CGO,
// since screen capture requires X11 libraries via CGO.
func newPlatformBackend() (Backend, error) {
	return nil, ErrNotSupported
}
