package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamcompute/codec"
	"github.com/c360/streamcompute/config"
	"github.com/c360/streamcompute/errors"
	"github.com/c360/streamcompute/filter"
	"github.com/c360/streamcompute/record"
	"github.com/c360/streamcompute/streamlog"
)

const testConfig = `
log:
  level: error
streams:
  - name: orders
    partitions: 2
  - name: enriched
    partitions: 2
codecs:
  - name: records
    factory: record
    options:
      class: record
      compression: lz4
blob_stores:
  default:
    type: memory
computations:
  - name: enrich
    kind: forward
    inputs: [in]
    outputs: [out]
    mapping:
      in: orders
      out: enriched
    codec: records
    filters:
      - kind: idempotent
      - kind: metrics
      - kind: external-store
        options:
          threshold: "8"
`

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamcompute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0600))
	return path
}

func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.NewLoader().LoadFile(writeConfig(t))
	require.NoError(t, err)
	return cfg
}

func readAll(t *testing.T, log streamlog.Log, c codec.Codec[record.Record], stream string) []record.Record {
	t.Helper()
	ctx := context.Background()
	n, err := log.Partitions(ctx, stream)
	require.NoError(t, err)

	var out []record.Record
	for p := 0; p < n; p++ {
		entries, err := log.Read(ctx, stream, p, 0, 1000)
		require.NoError(t, err)
		for _, e := range entries {
			r, err := c.Decode(e.Data)
			require.NoError(t, err)
			out = append(out, r)
		}
	}
	return out
}

func TestApp_InMemoryPipeline(t *testing.T) {
	ctx := context.Background()
	a := newApp(loadTestConfig(t), setupLogger(io.Discard, "error", "json"))
	require.NoError(t, a.setup(ctx, true))
	defer a.close(0)
	require.Len(t, a.runners, 1)

	c, err := codec.GetCodec[record.Record](a.codecs, "records")
	require.NoError(t, err)
	require.NotNil(t, c)

	inputs := []record.Record{
		record.Of("a", []byte("small")),
		record.Of("b", []byte("a payload larger than the threshold")),
		record.Of("a", []byte("small")),
	}
	for _, r := range inputs {
		data, err := c.Encode(r)
		require.NoError(t, err)
		_, err = a.log.Append(ctx, "orders", streamlog.PartitionFor(r.Key, 2), data)
		require.NoError(t, err)
	}

	runner := a.runners[0]
	require.NoError(t, runner.Init(ctx))
	n, err := runner.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	out := readAll(t, a.log, c, "enriched")
	require.Len(t, out, 2, "the duplicate is vetoed")

	var external int
	for _, r := range out {
		if r.Flags&record.FlagExternalValue != 0 {
			external++
		}
	}
	assert.Equal(t, 1, external, "only the large payload is moved to the blob store")
	assert.Equal(t, 1, a.blobStores["default"].(*filter.MemoryBlobStore).Len())
}

func TestApp_UnknownCodec(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.Codecs[0].Factory = "avro"

	a := newApp(cfg, setupLogger(io.Discard, "error", "json"))
	err := a.dryRun()
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestApp_NATSBlobStoreNeedsJetStream(t *testing.T) {
	cfg := loadTestConfig(t)
	cfg.BlobStores["default"] = config.BlobStoreConfig{Type: "nats"}

	a := newApp(cfg, setupLogger(io.Discard, "error", "json"))
	require.NoError(t, a.openLog(context.Background(), true))
	err := a.openBlobStores(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	out, err := executeCommand(t, "validate", "--config", writeConfig(t))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid: 2 streams, 1 codecs, 1 computations")

	_, err = executeCommand(t, "validate")
	require.Error(t, err)

	_, err = executeCommand(t, "validate", "--config", writeConfig(t), "--log-format", "xml")
	require.Error(t, err)
}

func TestCodecsCommand(t *testing.T) {
	out, err := executeCommand(t, "codecs", "--config", writeConfig(t))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "records")
	assert.Contains(t, lines[1], "class=record,compression=lz4")

	out, err = executeCommand(t, "codecs", "--config", writeConfig(t), "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"factory": "record"`)
}

func TestApp_ReportsHealth(t *testing.T) {
	ctx := context.Background()
	a := newApp(loadTestConfig(t), setupLogger(io.Discard, "error", "json"))
	require.NoError(t, a.setup(ctx, true))
	defer a.close(0)

	runner := a.runners[0]
	require.NoError(t, runner.Init(ctx))
	_, err := runner.RunOnce(ctx)
	require.NoError(t, err)

	status := a.health.AggregateHealth(appName)
	assert.True(t, status.Healthy)
	require.Len(t, status.SubStatuses, 1)
	assert.Equal(t, "enrich", status.SubStatuses[0].Component)
}
