//go:build unix

package platform

import "golang.org/x/sys/unix"

func checkPathAccess(path string) error {
	return unix.Access(path, unix.R_OK|unix.W_OK)
}
