//go:build windows

package timeguard

import (
	"os"
	"syscall"
)

// changeTime returns the file creation time in epoch seconds; Windows does
// not expose an inode change time. Falls back to the modification time.
func changeTime(info os.FileInfo) float64 {
	if st, ok := info.Sys().(*syscall.Win32FileAttributeData); ok {
		return float64(st.CreationTime.Nanoseconds()) / 1e9
	}
	return float64(info.ModTime().UnixNano()) / 1e9
}
