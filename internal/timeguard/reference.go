package timeguard

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultReferencePaths lists system files whose modification times
// normally only move forward. Setting the clock back past a recent write
// to one of these leaves its mtime in the future relative to the new
// clock, which the detector treats as a regression against its snapshot.
// Files that do not exist on a given host are simply skipped.
func DefaultReferencePaths() []string {
	if runtime.GOOS == "windows" {
		var paths []string
		if windir := os.Getenv("WINDIR"); windir != "" {
			paths = append(paths,
				filepath.Join(windir, "System32", "config", "SAM"),
				filepath.Join(windir, "System32", "config", "SYSTEM"),
			)
		}
		if programData := os.Getenv("PROGRAMDATA"); programData != "" {
			paths = append(paths, programData)
		}
		if appData := os.Getenv("APPDATA"); appData != "" {
			paths = append(paths, appData)
		}
		return paths
	}

	paths := []string{
		"/var/log/lastlog",
		"/var/log/wtmp",
		"/etc/passwd",
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		paths = append(paths, filepath.Join(home, ".bashrc"))
	}
	return paths
}

// snapshotReferences stats each path and records its timestamps in epoch
// seconds. Unreadable or missing paths are omitted.
func snapshotReferences(paths []string) []ReferenceFile {
	refs := make([]ReferenceFile, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		refs = append(refs, ReferenceFile{
			Path:  path,
			MTime: float64(info.ModTime().UnixNano()) / 1e9,
			CTime: changeTime(info),
		})
	}
	return refs
}
