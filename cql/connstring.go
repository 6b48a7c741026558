package cql

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/burmanm/cassnet-client/wire"
)

var consistencyByName = map[string]wire.Consistency{
	"any":          wire.ConsistencyAny,
	"one":          wire.ConsistencyOne,
	"two":          wire.ConsistencyTwo,
	"three":        wire.ConsistencyThree,
	"quorum":       wire.ConsistencyQuorum,
	"all":          wire.ConsistencyAll,
	"local_quorum": wire.ConsistencyLocalQuorum,
	"each_quorum":  wire.ConsistencyEachQuorum,
}

// ParseConnString parses a connection string of the form
//
//	cql://[user:pass@]host[:port][/keyspace][?consistency=quorum]
//
// into a ClusterConfig. Supported query parameters:
//   - consistency: any, one, two, three, quorum, all, local_quorum, each_quorum
func ParseConnString(connStr string) (*ClusterConfig, error) {
	u, err := url.Parse(connStr)
	if err != nil {
		return nil, fmt.Errorf("cql: invalid connection string: %w", err)
	}
	if u.Scheme != "cql" {
		return nil, fmt.Errorf("cql: invalid connection string: expected scheme \"cql\", got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("cql: invalid connection string: missing host")
	}

	opts := []Option{}

	if u.Port() != "" {
		port, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("cql: invalid connection string: bad port %q", u.Port())
		}
		opts = append(opts, WithPort(port))
	}

	if u.User != nil {
		password, _ := u.User.Password()
		opts = append(opts, WithAuth(u.User.Username(), password))
	}

	if ks := strings.TrimPrefix(u.Path, "/"); ks != "" {
		opts = append(opts, WithKeyspace(ks))
	}

	if consStr := u.Query().Get("consistency"); consStr != "" {
		cons, ok := consistencyByName[strings.ToLower(consStr)]
		if !ok {
			return nil, fmt.Errorf("cql: invalid connection string: unknown consistency %q", consStr)
		}
		opts = append(opts, WithConsistency(cons))
	}

	return NewClusterConfig(u.Hostname(), opts...), nil
}
