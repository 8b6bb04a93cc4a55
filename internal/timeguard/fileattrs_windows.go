//go:build windows

package timeguard

import "syscall"

// clearFileAttributes strips the hidden, system and read-only attributes a
// previous run may have set, so the state file can be rewritten in place.
func clearFileAttributes(path string) error {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := syscall.GetFileAttributes(p)
	if err != nil {
		return err
	}
	attrs &^= syscall.FILE_ATTRIBUTE_HIDDEN | syscall.FILE_ATTRIBUTE_SYSTEM | syscall.FILE_ATTRIBUTE_READONLY
	return syscall.SetFileAttributes(p, attrs)
}

// hideFile marks the state file hidden so casual directory listings skip it.
func hideFile(path string) error {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	attrs, err := syscall.GetFileAttributes(p)
	if err != nil {
		return err
	}
	return syscall.SetFileAttributes(p, attrs|syscall.FILE_ATTRIBUTE_HIDDEN)
}
