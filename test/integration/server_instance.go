package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"sync/atomic"
	"time"

	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/config"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/db"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server"
	"github.com/doodlesbykumbi/medcattrainer-in-go/pkg/server/endpoints"
)

// portCounter is used to allocate unique ports for each test server
var portCounter int32 = 19000

// ServerConfig holds configuration for a test trainer server instance
type ServerConfig struct {
	// Env holds configuration variables such as MAX_DATASET_SIZE
	Env map[string]string
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{Env: map[string]string{}}
}

func (c ServerConfig) environ(tc *TestContext) []string {
	env := []string{
		"DATABASE_URL=" + tc.DatabaseURL,
		"TRAINER_SECRET_KEY=" + string(testSecretKey),
		"MEDIA_ROOT=" + tc.MediaRoot,
		"AUDIT_DATABASE_URL=" + tc.DatabaseURL,
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+c.Env[k])
	}
	return env
}

// ServerInstance represents a running trainer server for a single test
type ServerInstance struct {
	Server        *server.Server
	ServerURL     string
	Port          int
	Config        ServerConfig
	cancel        context.CancelFunc
	done          chan error
	serverProcess *exec.Cmd
}

// StartServer starts a new trainer server against the suite database.
// This supports both inline and binary modes based on how the test suite was started.
func StartServer(tc *TestContext, cfg ServerConfig) (*ServerInstance, error) {
	if tc.InlineMode {
		return startInlineServerInstance(tc, cfg)
	}
	return startBinaryServerInstance(tc, cfg)
}

// startInlineServerInstance starts an in-process server
func startInlineServerInstance(tc *TestContext, cfg ServerConfig) (*ServerInstance, error) {
	port := int(atomic.AddInt32(&portCounter, 1))

	restore := setEnv(cfg.Env)
	trainerCfg, err := config.Load()
	restore()
	if err != nil {
		return nil, err
	}
	trainerCfg.MediaRoot = tc.MediaRoot

	gdb, err := db.Connect(db.Config{URL: tc.DatabaseURL})
	if err != nil {
		return nil, err
	}

	s, err := server.NewServer(trainerCfg, server.Options{
		DB:        gdb,
		SecretKey: testSecretKey,
		Host:      "127.0.0.1",
		Port:      fmt.Sprintf("%d", port),
	})
	if err != nil {
		return nil, err
	}
	endpoints.RegisterAll(s)

	ctx, cancel := context.WithCancel(context.Background())
	instance := &ServerInstance{
		Server:    s,
		ServerURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		Port:      port,
		Config:    cfg,
		cancel:    cancel,
		done:      make(chan error, 1),
	}

	go func() {
		instance.done <- s.Start(ctx)
	}()

	if err := waitForServer(instance.ServerURL, 10*time.Second); err != nil {
		instance.Stop()
		return nil, fmt.Errorf("server failed to become ready: %w", err)
	}

	return instance, nil
}

// startBinaryServerInstance starts a server using the trainerctl binary
func startBinaryServerInstance(tc *TestContext, cfg ServerConfig) (*ServerInstance, error) {
	port := int(atomic.AddInt32(&portCounter, 1))
	portStr := fmt.Sprintf("%d", port)

	ctx, cancel := context.WithCancel(context.Background())

	// Use --no-migrate since the suite already ran migrations
	cmd := exec.CommandContext(ctx, tc.BinaryPath, "server", "--no-migrate", "-b", "127.0.0.1", "-p", portStr)
	cmd.Env = append(os.Environ(), cfg.environ(tc)...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start binary: %w", err)
	}

	instance := &ServerInstance{
		ServerURL:     fmt.Sprintf("http://127.0.0.1:%d", port),
		Port:          port,
		Config:        cfg,
		cancel:        cancel,
		serverProcess: cmd,
	}

	if err := waitForServer(instance.ServerURL, 30*time.Second); err != nil {
		instance.Stop()
		return nil, fmt.Errorf("server failed to become ready: %w", err)
	}

	return instance, nil
}

// Stop shuts down the server instance
func (si *ServerInstance) Stop() {
	if si.cancel != nil {
		si.cancel()
	}
	if si.done != nil {
		select {
		case <-si.done:
		case <-time.After(15 * time.Second):
		}
	}
	if si.serverProcess != nil && si.serverProcess.Process != nil {
		_ = si.serverProcess.Process.Kill()
		_ = si.serverProcess.Wait()
	}
}

// setEnv sets the variables and returns a func restoring their old values
func setEnv(env map[string]string) func() {
	old := make(map[string]*string, len(env))
	for k, v := range env {
		if prev, ok := os.LookupEnv(k); ok {
			p := prev
			old[k] = &p
		} else {
			old[k] = nil
		}
		_ = os.Setenv(k, v)
	}
	return func() {
		for k, prev := range old {
			if prev == nil {
				_ = os.Unsetenv(k)
			} else {
				_ = os.Setenv(k, *prev)
			}
		}
	}
}
