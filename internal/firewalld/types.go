//go:build linux
// +build linux

package firewalld

import "errors"

var (
	ErrNotRunning       = errors.New("gofirewalld is not running")
	ErrPermissionDenied = errors.New("permission denied (lockdown or not root)")
)
