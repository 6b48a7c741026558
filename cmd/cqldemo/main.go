// Command cqldemo is a thin CLI exercising the cql client library end
// to end: connect, run OPTIONS, and issue a query. It carries no correctness guarantees of its own (same
// exclusion spec.md places on "the CLI that demos the library").
package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/burmanm/cassnet-client/cql"
	"github.com/burmanm/cassnet-client/wire"
)

func main() {
	host := flag.String("host", "127.0.0.1", "Cassandra node host")
	port := flag.Int("port", 9042, "Cassandra node port")
	keyspace := flag.String("keyspace", "", "initial keyspace to USE after connecting")
	query := flag.String("query", "SELECT * FROM system.local;", "CQL statement to run")
	flag.Parse()

	log := logrus.StandardLogger()
	clientID := uuid.New().String()
	log.WithField("client_id", clientID).Info("cqldemo: starting")

	cfg := cql.NewClusterConfig(*host,
		cql.WithPort(*port),
		cql.WithKeyspace(*keyspace),
		cql.WithConsistency(wire.ConsistencyOne),
		cql.WithLogger(log),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	session, err := cql.Connect(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("cqldemo: connect failed")
	}
	defer session.Close()

	opts, err := session.Options(ctx)
	if err != nil {
		log.WithError(err).Fatal("cqldemo: OPTIONS failed")
	}
	log.WithField("supported", opts).Info("cqldemo: server options")

	res, err := session.Query(*query).Exec(ctx)
	if err != nil {
		log.WithError(err).Fatal("cqldemo: query failed")
	}

	switch res.Kind {
	case wire.ResultRows:
		log.WithField("row_count", len(res.Rows.Rows)).Info("cqldemo: query returned rows")
		for i := range res.Rows.Rows {
			row, err := res.Rows.Row(i)
			if err != nil {
				log.WithError(err).Warn("cqldemo: failed to decode row")
				continue
			}
			log.WithField("row", row).Info("cqldemo: row")
		}
	case wire.ResultVoid:
		log.Info("cqldemo: query completed (void)")
	case wire.ResultSetKeyspace:
		log.WithField("keyspace", res.Keyspace).Info("cqldemo: keyspace changed")
	case wire.ResultSchemaChange:
		log.WithFields(logrus.Fields{
			"change_type": res.SchemaChangeType,
			"keyspace":    res.SchemaKeyspace,
			"table":       res.SchemaTable,
		}).Info("cqldemo: schema changed")
	default:
		log.WithField("kind", res.Kind).Warn("cqldemo: unrecognized result kind")
	}
}
