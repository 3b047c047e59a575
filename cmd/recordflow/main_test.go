package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/recordflow/pkg/record"
	"github.com/ajitpratap0/recordflow/pkg/serializer"
)

const testJob = `
version: "1.0"
name: cli-job
controller_services:
  - identifier: lookup
    class: service.cache.lru
    configuration:
      cache.size: "8"
streams:
  - name: main
    processors:
      - name: tagger
        class: processor.add_fields
        configuration:
          env: ${RECORDFLOW_TEST_ENV}
          kind: ${record_type}
      - name: enrich
        class: processor.enrich_records
        configuration:
          cache.service: lookup
`

func writeJob(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.yml")
	require.NoError(t, os.WriteFile(path, []byte(testJob), 0o600))
	return path
}

func execute(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(viper.New())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(bytes.NewReader(stdin))
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "recordflow v"+version)
}

func TestList(t *testing.T) {
	out, err := execute(t, nil, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "service.cache.lru")
	assert.Contains(t, out, "service.kafka.sink")
	assert.Contains(t, out, "processor.add_fields")
	assert.Contains(t, out, "processor.publish_records")
}

func TestValidate(t *testing.T) {
	t.Setenv("RECORDFLOW_TEST_ENV", "ci")
	out, err := execute(t, nil, "validate", "--job", writeJob(t))
	require.NoError(t, err)
	assert.Contains(t, out, "job cli-job is valid")
	assert.Contains(t, out, "stream main (batch size 1000)")
	assert.Contains(t, out, "- enrich")
	assert.Contains(t, out, "services: [lookup]")
}

func TestValidateMissingFile(t *testing.T) {
	_, err := execute(t, nil, "validate", "--job", filepath.Join(t.TempDir(), "nope.yml"))
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	t.Setenv("RECORDFLOW_TEST_ENV", "ci")
	var input bytes.Buffer
	codec, err := serializer.New(serializer.FormatJSON)
	require.NoError(t, err)
	require.NoError(t, serializer.WriteAll(&input, codec, []*record.Record{
		record.New(record.TypeLog).SetStringField("msg", "hello"),
		record.New(record.TypeMetric).SetDoubleField("value", 1.5),
	}))

	out, err := execute(t, input.Bytes(), "run", "--job", writeJob(t), "--stream", "main")
	require.NoError(t, err)

	records, err := serializer.ReadAll(bytes.NewBufferString(out), codec)
	require.NoError(t, err)
	require.Len(t, records, 2)

	env, ok := records[0].GetField("env")
	require.True(t, ok)
	assert.Equal(t, "ci", env.AsString())
	kind, ok := records[1].GetField("kind")
	require.True(t, ok)
	assert.Equal(t, "metric", kind.AsString())
}

func TestRunUnknownStream(t *testing.T) {
	_, err := execute(t, nil, "run", "--job", writeJob(t), "--stream", "other")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `no stream "other"`)
}
