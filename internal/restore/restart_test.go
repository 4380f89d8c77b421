package restore

import (
	"context"
	"testing"

	"dbbackup/internal/logger"
)

func TestTryCommandFailsOnUnknownBinary(t *testing.T) {
	ok := tryCommand(context.Background(), logger.NewNullLogger(), "bogus", "this-binary-does-not-exist-anywhere")
	if ok {
		t.Error("tryCommand() with nonexistent binary = true, want false")
	}
}

func TestTryCommandSucceedsOnTrue(t *testing.T) {
	ok := tryCommand(context.Background(), logger.NewNullLogger(), "true", "true")
	if !ok {
		t.Error("tryCommand() with `true` = false, want true")
	}
}

func TestRestartDockerRequiresContainerID(t *testing.T) {
	got := Restart(context.Background(), RuntimeDocker, "", logger.NewNullLogger())
	if got != "none (missing container id)" {
		t.Errorf("Restart(docker, \"\") = %q, want missing container id message", got)
	}
}

func TestRestartKubernetesRequiresContainerID(t *testing.T) {
	got := Restart(context.Background(), RuntimeKubernetes, "", logger.NewNullLogger())
	if got != "none (missing pod id)" {
		t.Errorf("Restart(kubernetes, \"\") = %q, want missing pod id message", got)
	}
}

func TestRestartNoRuntimeDispatchesByGOOS(t *testing.T) {
	original := goos
	defer func() { goos = original }()

	called := ""
	goos = func() string { called = "darwin"; return "darwin" }
	_ = restartNoRuntime(context.Background(), logger.NewNullLogger())
	if called != "darwin" {
		t.Errorf("goos seam not consulted for darwin branch")
	}

	goos = func() string { called = "linux"; return "linux" }
	_ = restartNoRuntime(context.Background(), logger.NewNullLogger())
	if called != "linux" {
		t.Errorf("goos seam not consulted for linux branch")
	}
}

func TestPlistPathIncludesLaunchdLabel(t *testing.T) {
	got := plistPath()
	want := "/Library/LaunchDaemons/org.postgresql.postgres.plist"
	if got != want {
		t.Errorf("plistPath() = %q, want %q", got, want)
	}
}
