package restore

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"dbbackup/internal/logger"
)

// RestartRuntime selects the container runtime strategy for post-restore
// PostgreSQL restart (spec.md §4.E "PostgreSQL restart").
type RestartRuntime string

const (
	RuntimeNone       RestartRuntime = ""
	RuntimeDocker     RestartRuntime = "docker"
	RuntimeKubernetes RestartRuntime = "kubernetes"
)

// linuxServiceVariants are tried in order after the bare "postgresql" unit.
var linuxServiceVariants = []string{"14", "13", "12", "11", "10", "9.6"}

// linuxDataDirs are the well-known data directories pg_ctl is tried
// against once every service manager strategy is exhausted.
var linuxDataDirs = []string{
	"/var/lib/postgresql/data",
	"/var/lib/pgsql/data",
	"/var/lib/pgsql/17/data",
	"/var/lib/pgsql/16/data",
	"/var/lib/pgsql/15/data",
}

// homebrewDataDirs are tried on macOS after "brew services restart" fails.
var homebrewDataDirs = []string{
	"/usr/local/var/postgres",
	"/opt/homebrew/var/postgres",
}

const launchdPlist = "org.postgresql.postgres"

// Restart performs a best-effort auto-restart of PostgreSQL after a
// restore, trying environment-specific strategies in order. It never
// guarantees PostgreSQL ends up running: it reports which strategy
// succeeded, or that all were attempted in vain, and leaves verification
// to the operator (spec.md §9 "Auto-restart heuristics").
func Restart(ctx context.Context, runtime_ RestartRuntime, containerID string, log logger.Logger) string {
	if log == nil {
		log = logger.NewNullLogger()
	}

	switch runtime_ {
	case RuntimeDocker:
		if containerID == "" {
			log.Warn("docker restart requested but no container id configured")
			return "none (missing container id)"
		}
		if tryCommand(ctx, log, "docker exec container", "docker", "exec", containerID, "pg_ctl", "restart", "-D", "/var/lib/postgresql/data") {
			return "docker exec " + containerID
		}
		return "none (all strategies failed)"

	case RuntimeKubernetes:
		if containerID == "" {
			log.Warn("kubernetes restart requested but no pod id configured")
			return "none (missing pod id)"
		}
		if tryCommand(ctx, log, "kubectl exec pod", "kubectl", "exec", containerID, "--", "pg_ctl", "restart", "-D", "/var/lib/postgresql/data") {
			return "kubectl exec " + containerID
		}
		return "none (all strategies failed)"

	default:
		return restartNoRuntime(ctx, log)
	}
}

func restartNoRuntime(ctx context.Context, log logger.Logger) string {
	switch goos() {
	case "darwin":
		return restartMacOS(ctx, log)
	default:
		return restartLinux(ctx, log)
	}
}

func restartLinux(ctx context.Context, log logger.Logger) string {
	if tryCommand(ctx, log, "systemctl postgresql", "systemctl", "restart", "postgresql") {
		return "systemctl restart postgresql"
	}
	for _, v := range linuxServiceVariants {
		unit := "postgresql-" + v
		if tryCommand(ctx, log, "systemctl "+unit, "systemctl", "restart", unit) {
			return "systemctl restart " + unit
		}
	}
	if tryCommand(ctx, log, "service postgresql", "service", "postgresql", "restart") {
		return "service postgresql restart"
	}
	for _, dir := range linuxDataDirs {
		if tryCommand(ctx, log, "pg_ctl "+dir, "pg_ctl", "restart", "-D", dir) {
			return "pg_ctl -D " + dir
		}
	}
	log.Warn("all linux restart strategies failed, auto-restart is best-effort")
	return "none (all strategies failed)"
}

func restartMacOS(ctx context.Context, log logger.Logger) string {
	if tryCommand(ctx, log, "brew services restart", "brew", "services", "restart", "postgresql") {
		return "brew services restart postgresql"
	}
	for _, dir := range homebrewDataDirs {
		if tryCommand(ctx, log, "pg_ctl "+dir, "pg_ctl", "restart", "-D", dir) {
			return "pg_ctl -D " + dir
		}
	}
	if tryCommand(ctx, log, "launchctl unload", "launchctl", "unload", plistPath()) &&
		tryCommand(ctx, log, "launchctl load", "launchctl", "load", plistPath()) {
		return "launchctl unload/load " + launchdPlist
	}
	log.Warn("all macOS restart strategies failed, auto-restart is best-effort")
	return "none (all strategies failed)"
}

func plistPath() string {
	return fmt.Sprintf("/Library/LaunchDaemons/%s.plist", launchdPlist)
}

// tryCommand runs name(args...), logging and returning false on failure
// rather than propagating the error: every restart strategy is one
// candidate in a best-effort chain.
func tryCommand(ctx context.Context, log logger.Logger, label, name string, args ...string) bool {
	cmd := exec.CommandContext(ctx, name, args...)
	if err := cmd.Run(); err != nil {
		log.Debug("restart strategy failed", "strategy", label, "error", err)
		return false
	}
	log.Info("restart strategy succeeded", "strategy", label)
	return true
}

// goos is a seam over runtime.GOOS for testability.
var goos = func() string { return runtime.GOOS }
