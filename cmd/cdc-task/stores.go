package main

import (
	"context"
	"fmt"

	"github.com/hugolhafner/go-connect/config"
	"github.com/hugolhafner/go-connect/kafka"
	"github.com/hugolhafner/go-connect/logger"
	"github.com/hugolhafner/go-connect/offset"
	okafka "github.com/hugolhafner/go-connect/offset/kafka"
	"github.com/hugolhafner/go-connect/offset/memory"
	"github.com/hugolhafner/go-connect/offset/natskv"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

func newProducer(worker *config.Configuration, l logger.Logger) (kafka.Producer, error) {
	servers := worker.List(BootstrapServers)
	if len(servers) == 0 {
		l.Warn("No bootstrap servers configured, records are logged instead of produced")
		return kafka.NewLogProducer(l), nil
	}

	p, err := kafka.NewKgoProducer(
		kafka.WithBootstrapServers(servers),
		kafka.WithClientID("go-connect-"+worker.String(TaskID)),
		kafka.WithLogger(l),
	)
	if err != nil {
		return nil, fmt.Errorf("create producer: %w", err)
	}
	return p, nil
}

func newOffsetStore(ctx context.Context, worker *config.Configuration, l logger.Logger) (offset.Store, error) {
	switch worker.String(OffsetStore) {
	case storeKafka:
		servers := worker.List(BootstrapServers)
		if len(servers) == 0 {
			return nil, fmt.Errorf("%s=%s requires %s", OffsetStore, storeKafka, BootstrapServers)
		}

		s, err := okafka.Open(
			ctx,
			okafka.WithBootstrapServers(servers),
			okafka.WithTopic(worker.String(OffsetTopic)),
			okafka.WithLogger(l),
		)
		if err != nil {
			return nil, fmt.Errorf("open kafka offset store: %w", err)
		}
		return s, nil

	case storeNats:
		nc, err := nats.Connect(worker.String(NatsURL), nats.Name("go-connect-"+worker.String(TaskID)))
		if err != nil {
			return nil, fmt.Errorf("connect to nats: %w", err)
		}

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create jetstream context: %w", err)
		}

		s, err := natskv.New(ctx, js, natskv.WithBucket(worker.String(OffsetBucket)), natskv.WithLogger(l))
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("open nats offset store: %w", err)
		}
		return natsStore{Store: s, conn: nc}, nil

	default:
		return memory.New(), nil
	}
}

// natsStore closes the connection it was opened with.
type natsStore struct {
	*natskv.Store
	conn *nats.Conn
}

func (s natsStore) Close() error {
	err := s.Store.Close()
	s.conn.Close()
	return err
}
