//go:build !windows

package logger

import (
	"log/syslog"

	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
)

// SyslogHook returns a hook sending the logs to the local syslog daemon.
func SyslogHook() (logrus.Hook, error) {
	return logrus_syslog.NewSyslogHook("", "", syslog.LOG_INFO, "multifs")
}
