//go:build darwin

package bgzf

import "errors"

// darwin has no memfd_create; newMapping falls back to an unlinked temp
// file, which serves the same purpose (anonymous-after-unlink shared
// memory backing for the double mmap) at the cost of a brief filesystem
// namespace entry.
func memfdCreate() (int, error) {
	return -1, errors.New("bgzf: memfd_create unavailable")
}
