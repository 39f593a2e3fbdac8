package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceWritten(t *testing.T) {
	dir := t.TempDir()
	tel, err := New(Options{Dir: dir, FlushInterval: time.Hour})
	require.NoError(t, err)

	tr := tel.Track("turn.send")
	tr.Set("conversation", "c1")
	tr.Mark("stream_open")
	tr.Mark("complete")
	tr.Finish()
	tr.Finish()
	tel.Close()

	f, err := os.Open(filepath.Join(dir, "turn.send.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	var lines []Trace
	for sc.Scan() {
		var got Trace
		require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
		lines = append(lines, got)
	}
	require.Len(t, lines, 1, "second Finish is a no-op")
	assert.Equal(t, "c1", lines[0].Attrs["conversation"])
	assert.GreaterOrEqual(t, len(lines[0].Steps), 2)
	assert.Equal(t, "stream_open", lines[0].Steps[0].Name)
}

func TestTrackWithoutInit(t *testing.T) {
	Close()
	tr := Track("noop")
	tr.Mark("x")
	tr.Finish()
	assert.Len(t, tr.Steps, 1)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
