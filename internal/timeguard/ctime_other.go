//go:build !linux && !darwin && !windows

package timeguard

import "os"

// changeTime falls back to the modification time on platforms without a
// portable change-time reading.
func changeTime(info os.FileInfo) float64 {
	return float64(info.ModTime().UnixNano()) / 1e9
}
