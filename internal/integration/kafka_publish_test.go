//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	kafkaadapter "github.com/couchcryptid/hydro-ingest/internal/adapter/kafka"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/archive"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/hydroquebec"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/metadata"
	"github.com/couchcryptid/hydro-ingest/internal/adapter/sqlite"
	"github.com/couchcryptid/hydro-ingest/internal/config"
	"github.com/couchcryptid/hydro-ingest/internal/domain"
	"github.com/couchcryptid/hydro-ingest/internal/observability"
	"github.com/couchcryptid/hydro-ingest/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-measurements"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("hq-ingest-test"))
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err, "start kafka container")

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cc, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cc.Close()

	require.NoError(t, cc.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}))
}

func readMeasurements(ctx context.Context, t *testing.T, broker string, n int) map[string]domain.Measurement {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	out := make(map[string]domain.Measurement, n)
	for len(out) < n {
		readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		cancel()
		require.NoError(t, err, "read from measurement topic")

		var m domain.Measurement
		require.NoError(t, json.Unmarshal(msg.Value, &m))
		assert.Equal(t, m.Key(), string(msg.Key))
		out[string(msg.Key)] = m
	}
	return out
}

// TestPublisher_RoundTrip verifies the adapter alone: a station batch written by
// the Publisher is readable with its natural keys and headers.
func TestPublisher_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	pub := kafkaadapter.NewPublisher(&config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}, discardLogger())
	t.Cleanup(func() { _ = pub.Close() })

	batch := []domain.Measurement{
		{StationID: "021601", Type: "level", Value: 10.5, Unit: "m", Timestamp: "2023-01-01T00:00"},
		{StationID: "021601", Type: "level", Value: 10.7, Unit: "m", Timestamp: "2023-01-01T01:00"},
	}
	require.NoError(t, pub.Publish(ctx, batch))

	got := readMeasurements(ctx, t, broker, 2)
	for _, m := range batch {
		assert.Equal(t, m, got[m.Key()])
	}
}

// TestCycle_PublishesCommittedMeasurements wires the orchestrator with the real
// SQLite store and Kafka publisher and checks that every persisted reading is
// forwarded.
func TestCycle_PublishesCommittedMeasurements(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	feed, err := os.ReadFile(filepath.Join("..", "domain", "testdata", "feed_sample.json"))
	require.NoError(t, err)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(feed)
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	logger := discardLogger()
	store := sqlite.NewStore(filepath.Join(dir, "hq.db"), logger)
	require.NoError(t, store.CreateSchema(ctx))
	stations := map[string]domain.Station{
		"021601": {Identifier: "021601", Name: "Romaine", MeasurementTypes: map[string]domain.MeasurementType{}},
	}
	require.NoError(t, store.UpsertStation(ctx, "021601", "Romaine"))
	meta := metadata.File{Path: filepath.Join(dir, "station_metadata.yaml")}
	require.NoError(t, meta.Save(stations))

	pub := kafkaadapter.NewPublisher(&config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}, logger)
	t.Cleanup(func() { _ = pub.Close() })

	orch := pipeline.New(pipeline.Stages{
		Fetcher:   hydroquebec.NewClient(srv.URL, 10*time.Second, logger),
		Archiver:  archive.NewManager(filepath.Join(dir, "archive"), ""),
		Metadata:  meta,
		Store:     store,
		Publisher: pub,
	}, pipeline.Settings{MaxAttempts: 1}, logger, observability.NewMetricsForTesting())

	require.NoError(t, orch.RunCycle(ctx))

	got := readMeasurements(ctx, t, broker, 3)
	assert.Contains(t, got, "021601|streamflow|m³/s|2023-01-01T00:00")
	assert.InDelta(t, 312.4, got["021601|streamflow|m³/s|2023-01-01T00:00"].Value, 1e-9)
	assert.InDelta(t, 10.7, got["021601|level|m|2023-01-01T01:00"].Value, 1e-9)
}
