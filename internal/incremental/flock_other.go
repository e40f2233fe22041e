//go:build !unix

package incremental

import (
	"github.com/spf13/afero"
)

// lockFile is a no-op where advisory file locks are unavailable; updates
// are then only serialized within the process.
func lockFile(_ afero.Fs, _ string) (func(), error) {
	return func() {}, nil
}
