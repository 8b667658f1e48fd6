package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"palm2ical/internal/config"
	"palm2ical/internal/palm"
	"palm2ical/internal/palm/palmtest"
)

type harness struct {
	fs     afero.Fs
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

// setup points the app at an in-memory filesystem holding /data/datebook.dat
// and a fixed clock.
func setup(t *testing.T, stdinData []byte) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}

	prevFs, prevIn, prevOut, prevErr, prevNow := appFs, stdin, stdout, stderr, now
	t.Cleanup(func() {
		appFs, stdin, stdout, stderr, now = prevFs, prevIn, prevOut, prevErr, prevNow
	})
	appFs = h.fs
	stdin = bytes.NewReader(stdinData)
	stdout = h.stdout
	stderr = h.stderr
	now = func() time.Time { return time.Date(2024, time.March, 4, 8, 0, 0, 0, time.UTC) }

	require.NoError(t, afero.WriteFile(h.fs, "/data/datebook.dat", sampleBytes(t), 0o644))
	return h
}

func sampleBytes(t *testing.T) []byte {
	start := time.Date(2024, time.March, 4, 9, 30, 0, 0, time.UTC)
	return palmtest.Bytes(t, palmtest.Datebook(
		[]palmtest.Category{{Index: 0, ID: 0, Name: "Unfiled"}, {Index: 1, ID: 1, Name: "Work"}},
		[]palmtest.Event{
			{
				RecordID:    1,
				Start:       start,
				End:         start.Add(15 * time.Minute),
				Description: "Standup",
				Category:    1,
				Repeat: &palm.RepeatSpec{
					Flag:     1,
					Brand:    palm.BrandWeekly,
					Interval: 1,
					DayIndex: palmtest.U32(1),
					DaysMask: palmtest.U8(0b0111110),
				},
			},
			{
				RecordID:    2,
				Start:       time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC),
				Description: "Holiday",
				Untimed:     true,
			},
		},
	))
}

func TestConvertFileToFileVerbose(t *testing.T) {
	h := setup(t, nil)

	err := Execute([]string{"palm2ical", "--timezone", "UTC", "-v", "/data/datebook.dat", "/data/out.ics"})
	require.NoError(t, err)

	out, err := afero.ReadFile(h.fs, "/data/out.ics")
	require.NoError(t, err)
	assert.Contains(t, string(out), "SUMMARY:Standup")
	assert.Contains(t, string(out), "SUMMARY:Holiday")

	assert.Equal(t, "wrote 2 events from /data/datebook.dat to /data/out.ics\n", h.stdout.String())
}

func TestConvertStdinToStdout(t *testing.T) {
	h := setup(t, sampleBytes(t))

	err := Execute([]string{"palm2ical", "--timezone", "UTC", "-v", "convert"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(h.stdout.String(), "BEGIN:VCALENDAR"))
	assert.Contains(t, h.stderr.String(), "wrote 2 events from stdin to stdout")
}

func TestConvertBadEncoding(t *testing.T) {
	setup(t, nil)
	err := Execute([]string{"palm2ical", "-e", "klingon", "/data/datebook.dat"})
	assert.Error(t, err)
}

func TestAgenda(t *testing.T) {
	h := setup(t, nil)

	err := Execute([]string{"palm2ical", "--timezone", "UTC", "agenda", "--days", "2", "/data/datebook.dat"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	assert.Equal(t, []string{
		"2024-03-04 09:30-09:45  Standup [Work]",
		"2024-03-05 all day      Holiday [Unfiled]",
		"2024-03-05 09:30-09:45  Standup [Work]",
	}, lines)
}

func TestDump(t *testing.T) {
	h := setup(t, nil)

	err := Execute([]string{"palm2ical", "dump", "/data/datebook.dat"})
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "kind: datebook")
	assert.Contains(t, h.stdout.String(), "brand: weekly")
}

func TestConfigFileSuppliesSource(t *testing.T) {
	h := setup(t, nil)
	cfg := config.DefaultConfig()
	cfg.Source = "/data/datebook.dat"
	cfg.Timezone = "UTC"
	require.NoError(t, cfg.Save(h.fs, "/etc/palm2ical.yaml"))

	err := Execute([]string{"palm2ical", "--config", "/etc/palm2ical.yaml", "-v"})
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), "BEGIN:VCALENDAR")
	assert.Contains(t, h.stderr.String(), "wrote 2 events from /data/datebook.dat to stdout")
}

func TestServeRequiresSource(t *testing.T) {
	setup(t, nil)
	err := Execute([]string{"palm2ical", "serve"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source")
}

func TestServeRejectsBadSchedule(t *testing.T) {
	h := setup(t, nil)
	cfg := config.DefaultConfig()
	cfg.Source = "/data/datebook.dat"
	cfg.Timezone = "UTC"
	cfg.RefreshCron = "every tuesday"
	require.NoError(t, cfg.Save(h.fs, "/etc/palm2ical.yaml"))

	err := Execute([]string{"palm2ical", "--config", "/etc/palm2ical.yaml", "serve"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refresh schedule")
}
