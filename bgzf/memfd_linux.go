//go:build linux

package bgzf

import "golang.org/x/sys/unix"

func memfdCreate() (int, error) {
	return unix.MemfdCreate("bgzf-ring", unix.MFD_CLOEXEC)
}
