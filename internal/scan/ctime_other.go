//go:build !linux

package scan

// createdTime is unavailable portably; 0 marks it unknown.
func createdTime(string) int64 {
	return 0
}
