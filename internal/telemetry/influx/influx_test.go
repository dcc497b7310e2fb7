package influx

import (
	"bufio"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamyashm/pyRace/internal/telemetry"
)

// Compile-time interface check.
var _ telemetry.Backend = (*Backend)(nil)

func TestPoint(t *testing.T) {
	info := telemetry.Info{ID: "s", Slot: 2}
	s := telemetry.Sample{Tick: 5, X: 23.4, Lap: 1, OffTrack: true, Peer: "live", Time: time.Unix(10, 0)}

	line := influxdb2_write.PointToLineProtocol(Point(info, s), time.Second)

	assert.True(t, strings.HasPrefix(line, "vehicle,peer=live,session=s,slot=2 "), line)
	assert.Contains(t, line, "x=23.4")
	assert.Contains(t, line, "tick=5i")
	assert.Contains(t, line, "lap=1i")
	assert.Contains(t, line, "off_track=true")
	assert.Contains(t, strings.TrimSpace(line), " 10")
}

func TestBackend_UnreachableUsesBackup(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.lp.gz")
	b := New(Config{
		URL:         "http://127.0.0.1:1",
		Org:         "pyrace",
		Bucket:      "telemetry",
		BackupPath:  backup,
		PingTimeout: time.Second,
	}, zerolog.Nop())

	require.NoError(t, b.Init())
	assert.True(t, b.UsingBackup())

	require.NoError(t, b.StartSession(telemetry.Info{ID: "s", Slot: 1}))
	require.NoError(t, b.RecordSamples([]telemetry.Sample{
		{Tick: 1, Peer: "no_peer", Time: time.Unix(1, 0)},
		{Tick: 2, Peer: "no_peer", Time: time.Unix(2, 0)},
	}))
	require.NoError(t, b.EndSession())
	require.NoError(t, b.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)

	var lines []string
	sc := bufio.NewScanner(gz)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "vehicle,peer=no_peer,session=s,slot=1 "))
	assert.Contains(t, lines[1], "tick=2i")
}

func TestBackend_UnreachableWithoutBackupFails(t *testing.T) {
	b := New(Config{URL: "http://127.0.0.1:1", PingTimeout: time.Second}, zerolog.Nop())
	assert.Error(t, b.Init())
}

func TestBackend_RequiresSession(t *testing.T) {
	b := New(Config{URL: "http://127.0.0.1:1", BackupPath: filepath.Join(t.TempDir(), "b.gz"), PingTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, b.Init())
	defer b.Close()

	assert.Error(t, b.RecordSamples([]telemetry.Sample{{}}))
	assert.Error(t, b.EndSession())
}
