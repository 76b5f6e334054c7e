//go:build unix

package container

import "golang.org/x/sys/unix"

// execReplace replaces the current process image via execve. It only
// returns on error.
func execReplace(path string, argv, env []string) error {
	return unix.Exec(path, argv, env)
}
