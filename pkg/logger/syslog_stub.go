//go:build windows

package logger

import (
	"errors"

	"github.com/sirupsen/logrus"
)

// SyslogHook is not supported on Windows.
func SyslogHook() (logrus.Hook, error) {
	return nil, errors.New("syslog is not available on Windows")
}
