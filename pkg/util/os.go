package util

import "os"

// MkdirAllX creates path with all parents like os.MkdirAll but always
// grants search permission to the owner and the group, so directories
// stay traversable whatever perm is.
func MkdirAllX(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm|0o110)
}
