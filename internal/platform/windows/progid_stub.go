//go:build !windows

package windows

// ProgIDFromCLSID is only available on Windows.
func ProgIDFromCLSID(clsid [16]byte) (string, error) {
	return "", ErrUnsupported
}
