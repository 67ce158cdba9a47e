//go:build !windows

package report

import (
	"os"

	"github.com/google/renameio/v2"
)

// atomicWriteFile replaces path in one rename so readers never see a
// partial report.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	return renameio.WriteFile(path, data, perm)
}
