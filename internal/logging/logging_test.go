package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, false, time.UTC)

	log.InfoContext(context.Background(), "upload_complete", "file_id", "f1", "size", 250)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "upload_complete", entry["msg"])
	assert.Equal(t, "f1", entry["file_id"])
	assert.Equal(t, float64(250), entry["size"])
	assert.Equal(t, "filescdn", entry["service"])
	assert.NotEmpty(t, entry["ts"])
	assert.NotContains(t, entry, "time")
}

func TestNew_DebugLevel(t *testing.T) {
	var quiet, verbose bytes.Buffer

	New(&quiet, false, nil).Debug("chunk_meta_ignored")
	New(&verbose, true, nil).Debug("chunk_meta_ignored")

	assert.Empty(t, quiet.String())
	assert.True(t, strings.Contains(verbose.String(), `"level":"debug"`))
}

func TestNew_Location(t *testing.T) {
	loc := time.FixedZone("WIB", 7*3600)
	var buf bytes.Buffer
	New(&buf, false, loc).Warn("slow")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	ts, err := time.Parse(time.RFC3339Nano, entry["ts"].(string))
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Equal(t, 7*3600, offset)
	assert.Equal(t, "warn", entry["level"])
}
