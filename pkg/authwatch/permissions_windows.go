//go:build windows

package authwatch

import (
	"errors"
	"io/fs"
)

// ErrUnsupported is returned on platforms without a text auth log.
var ErrUnsupported = errors.New("auth log watching is not supported on windows")

func ensureReadable(_ string, _ fs.FileInfo) error {
	return ErrUnsupported
}
