// Package cql is the top-level client API: it composes wire, frame,
// and conn into a Session and PreparedStatement pair callers program
// against.
package cql

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/burmanm/cassnet-client/wire"
)

const defaultPort = 9042

// ClusterConfig holds everything needed to dial and start up a single
// connection: host/port, optional credentials, optional initial
// keyspace, default consistency, and timeouts.
type ClusterConfig struct {
	Host string
	Port int

	Credentials map[string]string
	Keyspace    string

	DefaultConsistency wire.Consistency

	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	Logger logrus.FieldLogger
}

// NewClusterConfig returns a ClusterConfig for host with sensible
// defaults (port 9042, ONE consistency, 10s connect / query
// timeouts), customized by the given options.
func NewClusterConfig(host string, opts ...Option) *ClusterConfig {
	c := &ClusterConfig{
		Host:               host,
		Port:               defaultPort,
		DefaultConsistency: wire.ConsistencyOne,
		ConnectTimeout:     10 * time.Second,
		QueryTimeout:       10 * time.Second,
		Logger:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Option customizes a ClusterConfig.
type Option func(*ClusterConfig)

// WithPort overrides the default 9042 port.
func WithPort(port int) Option {
	return func(c *ClusterConfig) { c.Port = port }
}

// WithAuth configures PasswordAuthenticator credentials.
func WithAuth(username, password string) Option {
	return func(c *ClusterConfig) {
		c.Credentials = map[string]string{"username": username, "password": password}
	}
}

// WithKeyspace configures the initial keyspace selected on connect.
func WithKeyspace(keyspace string) Option {
	return func(c *ClusterConfig) { c.Keyspace = keyspace }
}

// WithConsistency overrides the default per-query consistency level.
func WithConsistency(consistency wire.Consistency) Option {
	return func(c *ClusterConfig) { c.DefaultConsistency = consistency }
}

// WithTimeout overrides ConnectTimeout, which Connect applies to the
// dial and handshake, and QueryTimeout. No Session, Query or
// PreparedStatement call applies QueryTimeout; each call runs under
// the context it is given.
func WithTimeout(connect, query time.Duration) Option {
	return func(c *ClusterConfig) {
		c.ConnectTimeout = connect
		c.QueryTimeout = query
	}
}

// WithLogger overrides the default logrus.StandardLogger().
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *ClusterConfig) { c.Logger = l }
}
