//go:build !windows

package bytesource

import "os"

// SetBinaryMode is a no-op on unix-like platforms: os.Stdin is already
// opened in binary mode, there is no line-ending translation layer to
// disable.
func SetBinaryMode(*os.File) error { return nil }
