package watchdog

import "fmt"

// Alert kinds, also used as metric labels.
const (
	AlertRecovery  = "recovery"
	AlertFailure   = "failure"
	AlertAutostart = "autostart"
)

const (
	detailPingOK     = "reachable again by IP %s (ping OK)"
	detailAPIRunning = "API status RUNNING (ping failed, API responds)"
)

func recoveryTitle(name string) string {
	return fmt.Sprintf("✅ RECOVERY: machine *%s* is back", name)
}

func failureTitle(name string) string {
	return fmt.Sprintf("🚨 FAILURE: machine *%s* is unreachable", name)
}

func autostartTitle(name string) string {
	return fmt.Sprintf("🚀 AUTOSTART: machine *%s* is starting via API", name)
}
