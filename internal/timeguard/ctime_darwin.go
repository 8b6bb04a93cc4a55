//go:build darwin

package timeguard

import (
	"os"
	"syscall"
)

// changeTime returns the inode change time in epoch seconds, falling back
// to the modification time when the stat data is not in the expected form.
func changeTime(info os.FileInfo) float64 {
	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		return float64(st.Ctimespec.Sec) + float64(st.Ctimespec.Nsec)/1e9
	}
	return float64(info.ModTime().UnixNano()) / 1e9
}
