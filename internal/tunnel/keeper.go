package tunnel

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"dbbackup/internal/logger"

	"golang.org/x/crypto/ssh"
)

const (
	dynamicPortLow  = 10000
	dynamicPortHigh = 65535

	verifyAttempts = 3
	verifyInterval = 1 * time.Second
)

// Keeper is the forwarding controller for a single SSH tunnel. It is safe
// for concurrent use: state transitions (setup/close) are serialized by a
// mutex, while IsActive is a lock-free atomic read so non-mutating callers
// never block behind an in-flight setup or forward loop (spec.md §5
// "Shared resource policy").
type Keeper struct {
	mu     sync.Mutex
	active atomic.Bool
	log    logger.Logger

	client   *ssh.Client
	listener net.Listener
	wg       sync.WaitGroup

	originalHost string
	originalPort int
	localPort    int
}

// New creates a Keeper. Library consumers who don't want the package-level
// singleton should construct one directly and thread it through their own
// operation context (spec.md §9 REDESIGN FLAG "Global tunnel singleton").
func New(log logger.Logger) *Keeper {
	if log == nil {
		log = logger.NewNullLogger()
	}
	return &Keeper{log: log}
}

// Setup opens the tunnel described by profile. A no-op if a tunnel is
// already active (spec.md §4.C).
func (k *Keeper) Setup(ctx context.Context, profile Profile) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.active.Load() {
		k.log.Info("SSH tunnel already active, skipping setup")
		return nil
	}

	if !profile.hasCredential() {
		return ErrMissingCredential
	}

	auth, err := authMethod(profile)
	if err != nil {
		return err
	}

	clientCfg := &ssh.ClientConfig{
		User:            profile.User,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	addr := net.JoinHostPort(profile.Host, strconv.Itoa(profile.sshPort()))
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}

	localPort := profile.LocalPort
	var listener net.Listener
	if localPort != 0 {
		listener, err = net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(localPort)))
		if err != nil {
			client.Close()
			return fmt.Errorf("%w: bind localhost:%d: %v", ErrTunnel, localPort, err)
		}
	} else {
		listener, localPort, err = listenOnFreePort()
		if err != nil {
			client.Close()
			return fmt.Errorf("%w: %v", ErrTunnel, err)
		}
	}

	k.log.Info("SSH tunnel established", "local_port", localPort, "remote", net.JoinHostPort(profile.RemoteHost, strconv.Itoa(profile.RemotePort)), "via", addr)

	k.client = client
	k.listener = listener
	k.originalHost = profile.RemoteHost
	k.originalPort = profile.RemotePort
	k.localPort = localPort
	k.active.Store(true)

	k.wg.Add(1)
	go k.acceptLoop(profile.RemoteHost, profile.RemotePort)

	return nil
}

// acceptLoop accepts local connections and forwards each through its own
// SSH direct-tcpip channel until the listener is closed by Close. Per-
// connection errors are logged, not propagated: the loop keeps serving
// new connections (spec.md §4.C "Failure semantics").
func (k *Keeper) acceptLoop(remoteHost string, remotePort int) {
	defer k.wg.Done()

	for {
		conn, err := k.listener.Accept()
		if err != nil {
			if k.active.Load() {
				k.log.Debug("SSH tunnel listener stopped", "error", err)
			}
			return
		}

		k.wg.Add(1)
		go func() {
			defer k.wg.Done()
			if err := k.forwardConnection(conn, remoteHost, remotePort); err != nil {
				k.log.Warn("SSH tunnel forwarding error", "error", err)
			}
		}()
	}
}

func (k *Keeper) forwardConnection(local net.Conn, remoteHost string, remotePort int) error {
	defer local.Close()

	remote, err := k.client.Dial("tcp", net.JoinHostPort(remoteHost, strconv.Itoa(remotePort)))
	if err != nil {
		return fmt.Errorf("open direct-tcpip channel: %w", err)
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(remote, local)
	}()
	go func() {
		defer wg.Done()
		io.Copy(local, remote)
	}()
	wg.Wait()

	return nil
}

// Verify probes the forwarded database endpoint, retrying up to
// verifyAttempts times at verifyInterval (spec.md §4.C, §6 "Tunnel
// verify() has a hard cap of 3 attempts at 1 s intervals").
func (k *Keeper) Verify(ctx context.Context) error {
	if !k.active.Load() {
		return fmt.Errorf("%w: tunnel is not active", ErrTunnel)
	}

	var lastErr error
	for attempt := 1; attempt <= verifyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(verifyInterval):
		}

		k.log.Debug("verifying SSH tunnel", "attempt", attempt)
		if err := probePostgres(ctx, k.localPort); err != nil {
			lastErr = err
			k.log.Warn("PostgreSQL server not ready through tunnel", "attempt", attempt, "error", err)
			continue
		}
		k.log.Info("SSH tunnel verified")
		return nil
	}

	return fmt.Errorf("%w: %v", ErrVerifyTimeout, lastErr)
}

// probePostgres checks server availability through the tunnel via
// pg_isready, mirroring the original implementation's verification step.
func probePostgres(ctx context.Context, localPort int) error {
	cmd := exec.CommandContext(ctx, "pg_isready", "-h", "localhost", "-p", strconv.Itoa(localPort))
	if err := cmd.Run(); err != nil {
		return err
	}
	return nil
}

// Close tears down the tunnel. Idempotent: always clears the active flag
// and returns nil if the tunnel was already inactive (spec.md §4.C).
func (k *Keeper) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.active.Load() {
		return nil
	}

	k.active.Store(false)

	if k.listener != nil {
		k.listener.Close()
	}
	k.wg.Wait()

	if k.client != nil {
		k.client.Close()
	}

	k.client = nil
	k.listener = nil
	k.log.Info("SSH tunnel closed")
	return nil
}

// IsActive reports whether a tunnel is currently active, without locking
// (spec.md §5 "its inner state flag is atomic so non-mutating observers
// can poll without locking").
func (k *Keeper) IsActive() bool {
	return k.active.Load()
}

func authMethod(profile Profile) (ssh.AuthMethod, error) {
	if profile.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(profile.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("%w: read private key: %v", ErrAuth, err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: parse private key: %v", ErrAuth, err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(profile.Password), nil
}

// listenOnFreePort tries random ports in [dynamicPortLow, dynamicPortHigh]
// before falling back to an OS-assigned ephemeral port (spec.md §4.C
// "a dynamically chosen free port in [10000, 65535]").
func listenOnFreePort() (net.Listener, int, error) {
	const attempts = 20
	for i := 0; i < attempts; i++ {
		port, err := randomPort(dynamicPortLow, dynamicPortHigh)
		if err != nil {
			break
		}
		listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return listener, port, nil
		}
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("no free port available: %w", err)
	}
	return listener, listener.Addr().(*net.TCPAddr).Port, nil
}

func randomPort(low, high int) (int, error) {
	span := big.NewInt(int64(high - low + 1))
	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return low + int(n.Int64()), nil
}
