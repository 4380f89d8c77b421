package tunnel

import (
	"context"
	"errors"
	"testing"

	"dbbackup/internal/logger"
)

func TestSetupRejectsMissingCredential(t *testing.T) {
	k := New(logger.NewNullLogger())

	err := k.Setup(context.Background(), Profile{Host: "jump.example.com", User: "ops"})

	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Setup() with no credential = %v, want ErrMissingCredential", err)
	}
}

func TestCloseOnInactiveKeeperIsNoop(t *testing.T) {
	k := New(logger.NewNullLogger())

	if err := k.Close(); err != nil {
		t.Errorf("Close() on never-setup keeper = %v, want nil", err)
	}
	if k.IsActive() {
		t.Error("IsActive() after Close() = true, want false")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	k := New(logger.NewNullLogger())

	if err := k.Close(); err != nil {
		t.Fatalf("first Close() = %v", err)
	}
	if err := k.Close(); err != nil {
		t.Fatalf("second Close() = %v, want nil", err)
	}
	if k.IsActive() {
		t.Error("IsActive() after repeated Close() = true, want false")
	}
}

func TestVerifyOnInactiveKeeperFails(t *testing.T) {
	k := New(logger.NewNullLogger())

	err := k.Verify(context.Background())
	if err == nil {
		t.Fatal("Verify() on inactive keeper: want error, got nil")
	}
}

func TestListenOnFreePortReturnsLoopbackListener(t *testing.T) {
	listener, port, err := listenOnFreePort()
	if err != nil {
		t.Fatalf("listenOnFreePort() = %v", err)
	}
	defer listener.Close()

	if port <= 0 {
		t.Errorf("listenOnFreePort() port = %d, want positive", port)
	}
}

func TestProfileHasCredential(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    bool
	}{
		{"neither", Profile{}, false},
		{"password only", Profile{Password: "secret"}, true},
		{"key only", Profile{PrivateKeyPath: "/home/op/.ssh/id_ed25519"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.profile.hasCredential(); got != tt.want {
				t.Errorf("hasCredential() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProfileSSHPortDefaultsTo22(t *testing.T) {
	p := Profile{}
	if p.sshPort() != 22 {
		t.Errorf("sshPort() = %d, want 22", p.sshPort())
	}

	p.Port = 2222
	if p.sshPort() != 2222 {
		t.Errorf("sshPort() = %d, want 2222", p.sshPort())
	}
}

func TestSingletonSetupRejectsMissingCredential(t *testing.T) {
	err := Setup(context.Background(), Profile{Host: "jump.example.com", User: "ops"}, logger.NewNullLogger())
	if !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Setup() via singleton = %v, want ErrMissingCredential", err)
	}
	if IsActive() {
		t.Error("IsActive() after failed singleton Setup() = true, want false")
	}
}
