package fsx

import "os"

// IsNotExist reports whether err indicates a missing file or directory,
// mirroring os.IsNotExist for callers that only hold an error returned
// through the FS interface.
func IsNotExist(err error) bool {
	return os.IsNotExist(err)
}
