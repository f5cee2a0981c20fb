//go:build linux

package scan

import (
	"os"
	"syscall"
)

// createdTime returns the inode change time, the closest thing Linux
// exposes to a creation timestamp.
func createdTime(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return st.Ctim.Sec
	}
	return 0
}
