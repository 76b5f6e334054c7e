//go:build !unix

package container

import "errors"

func execReplace(path string, argv, env []string) error {
	return errors.New("container: interactive attach is only supported on unix")
}
