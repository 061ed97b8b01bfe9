package smsverify

import (
	"net/http"

	"github.com/IMQS/serviceauth"
)

// sendPermission is the serviceauth permission a caller needs to send and check codes.
const sendPermission = "smsverify"

// userHasPermission asks the auth service whether the caller holds sendPermission,
// and returns the caller's identity.
func userHasPermission(s *VerifyServer, r *http.Request) (bool, string) {
	if !s.Config.Authentication.Enabled {
		return true, ""
	}

	httpCode, _, authResponse := serviceauth.VerifyUserHasPermission(r, sendPermission)
	if httpCode == http.StatusOK {
		return true, authResponse.Identity
	}

	s.Log.Infof("%v: User unauthorized", httpCode)
	return false, ""
}
