// Package ssh provides the SSH command runner for the target machine.
// It handles connection establishment with retry logic, key-based
// authentication, and command execution with context support.
//
// The primary use case is freshly provisioned instances where SSH becomes
// available some time after boot, so connection attempts are retried with
// backoff before giving up.
//
// Security: host key verification is disabled by default for ephemeral
// instances. Configure HostKeyCallback when targets are persistent.
package ssh

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/imamik/agentup/internal/util/retry"
)

const (
	defaultPort        = 22
	defaultDialTimeout = 10 * time.Second
)

func defaultConnectPolicy() retry.Policy {
	return retry.Policy{BaseDelay: 5 * time.Second, MaxDelay: 15 * time.Second, MaxAttempts: 10}
}

// Config holds SSH client configuration.
type Config struct {
	Host string
	Port int
	User string

	// PrivateKey is the PEM-encoded key material. If empty, PrivateKeyPath
	// is read instead.
	PrivateKey     []byte
	PrivateKeyPath string

	// DialTimeout is the timeout for establishing the TCP connection.
	DialTimeout time.Duration

	// ConnectPolicy governs connection retry. Zero value uses the default.
	ConnectPolicy retry.Policy

	// HostKeyCallback handles host key verification. If nil,
	// ssh.InsecureIgnoreHostKey() is used.
	HostKeyCallback ssh.HostKeyCallback
}

// Client executes commands on the target machine via SSH. The private key is
// parsed once during construction; connections are created per Execute call.
type Client struct {
	config *Config
	signer ssh.Signer
}

// NewClient creates a new SSH client and validates the private key.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("config host cannot be empty")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("config user cannot be empty")
	}

	configCopy := *cfg
	if configCopy.Port == 0 {
		configCopy.Port = defaultPort
	}
	if configCopy.DialTimeout == 0 {
		configCopy.DialTimeout = defaultDialTimeout
	}
	if configCopy.ConnectPolicy == (retry.Policy{}) {
		configCopy.ConnectPolicy = defaultConnectPolicy()
	}
	if configCopy.HostKeyCallback == nil {
		configCopy.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // Default for ephemeral instances
	}

	if len(configCopy.PrivateKey) == 0 {
		if configCopy.PrivateKeyPath == "" {
			return nil, fmt.Errorf("config needs a private key or a private key path")
		}
		key, err := os.ReadFile(configCopy.PrivateKeyPath) // #nosec G304
		if err != nil {
			return nil, fmt.Errorf("failed to read private key %s: %w", configCopy.PrivateKeyPath, err)
		}
		configCopy.PrivateKey = key
	}

	signer, err := ssh.ParsePrivateKey(configCopy.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &Client{config: &configCopy, signer: signer}, nil
}

// Host returns the target host the client connects to.
func (c *Client) Host() string {
	return c.config.Host
}

// Execute runs a command on the target machine and returns its combined
// stdout+stderr output. The connection is established with retry.
func (c *Client) Execute(ctx context.Context, command string) (string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = client.Close() }()

	return c.runCommand(client, command)
}

// connect establishes the SSH connection with retry. Fresh instances can take
// a while to accept connections after boot.
func (c *Client) connect(ctx context.Context) (*ssh.Client, error) {
	config := &ssh.ClientConfig{
		User: c.config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(c.signer),
		},
		HostKeyCallback: c.config.HostKeyCallback,
		Timeout:         c.config.DialTimeout,
	}

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)
	var client *ssh.Client

	err := retry.Do(ctx, c.config.ConnectPolicy, func(context.Context) error {
		var dialErr error
		client, dialErr = ssh.Dial("tcp", addr, config)
		return dialErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", addr, err)
	}

	return client, nil
}

// runCommand executes a command on an established SSH connection.
func (c *Client) runCommand(client *ssh.Client, command string) (string, error) {
	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create SSH session on %s: %w", c.config.Host, err)
	}
	defer func() { _ = session.Close() }()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("command failed on %s: %w\nCommand: %s\nOutput: %s",
			c.config.Host, err, command, string(output))
	}

	return string(output), nil
}
