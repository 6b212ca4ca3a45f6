package services

import (
	"userdeck/common"
)

// OpenRegistrationDefault is the env-level default for self-registration.
// A row in app_settings overrides it at runtime.
func OpenRegistrationDefault() bool {
	return common.EnvBool("USERDECK_OPEN_REGISTRATION", "false")
}
