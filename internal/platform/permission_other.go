//go:build !unix

package platform

import "os"

func checkPathAccess(path string) error {
	_, statError := os.Stat(path)
	return statError
}
