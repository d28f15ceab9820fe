package models

import "time"

// Names of the integer settings kept in app_settings.
const (
	SettingBreakglassSet            = "breakglass_set"
	SettingBreakglassEnabled        = "breakglass_enabled"
	SettingUserSessionTimeout       = "user_session_timeout"
	SettingBreakglassSessionTimeout = "breakglass_session_timeout"
)

type SessionKind string

const (
	SessionNormal     SessionKind = "normal"
	SessionBreakglass SessionKind = "breakglass"
)

// SessionPolicy is the session lifetime that applies to a resolved user.
type SessionPolicy struct {
	Kind    SessionKind
	Timeout time.Duration
}
