package smsverify

import "github.com/IMQS/gowinsvc/service"

// RunAsService runs handler under the Windows service manager. It returns false when the
// process was not started by the service manager, in which case the caller runs handler itself.
func RunAsService(handler func()) bool {
	return service.RunAsService(handler)
}
