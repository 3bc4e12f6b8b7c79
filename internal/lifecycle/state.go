package lifecycle

import "strings"

// Normalized instance states.
const (
	StateRunning    = "running"
	StatePending    = "pending"
	StateStopped    = "stopped"
	StateTerminated = "terminated"
	StateError      = "error"
)

// NormalizeState maps a provider's native status onto the common vocabulary.
// Unknown statuses are reported as pending.
func NormalizeState(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "running", "active":
		return StateRunning
	case "provisioning", "booting", "pending", "new", "staging", "starting", "initializing",
		"creating", "rebuilding", "migrating", "provisioning_failed_retry":
		return StatePending
	case "offline", "off", "stopped", "stopping", "shutting_down", "shutting-down", "suspended":
		return StateStopped
	case "deleting", "terminated", "archive", "deleted":
		return StateTerminated
	case "error", "crashed", "failed":
		return StateError
	default:
		return StatePending
	}
}
