//go:build windows

package bytesource

import (
	"os"

	"golang.org/x/sys/windows"

	"github.com/vppillai/jojodiff/jerr"
)

// SetBinaryMode strips ENABLE_PROCESSED_INPUT and ENABLE_LINE_INPUT
// from the console input mode so a patch or source piped through
// stdin on a console (as opposed to redirected from a file, where this
// is a no-op) is not mangled by CRLF/Ctrl-Z translation.
func SetBinaryMode(f *os.File) error {
	h := windows.Handle(f.Fd())
	var mode uint32
	if err := windows.GetConsoleMode(h, &mode); err != nil {
		// not a console (e.g. redirected from a file or pipe): nothing to do.
		return nil
	}
	mode &^= windows.ENABLE_PROCESSED_INPUT | windows.ENABLE_LINE_INPUT
	if err := windows.SetConsoleMode(h, mode); err != nil {
		return jerr.Wrap(jerr.ErrGeneric, "setting console mode")
	}
	return nil
}
