package textlog_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store/textlog"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

func TestFileNames(t *testing.T) {
	day := time.Date(2026, 3, 7, 15, 0, 0, 0, time.UTC)
	assert.Equal(t, "headFix_cage7_0307.txt", textlog.DataFileName("cage7", day))
	assert.Equal(t, "currentStats_cage7.txt", textlog.StatsFileName("cage7"))
}

func TestFormatEvent(t *testing.T) {
	at := time.Unix(1700000000, 250000000).UTC()
	wall := time.Date(2026, 3, 7, 15, 4, 5, 123456000, time.UTC)

	line := textlog.FormatEvent(types.TrialEvent{Tag: "42", At: at, Kind: types.EventReward, Index: 2}, wall)
	assert.Equal(t, "42\t1700000000.250000\t2026-03-07 15:04:05.123456\treward2\n", line)
}

func TestEventFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "headFix_c1_0101.txt")
	f, err := textlog.OpenEventFile(path)
	require.NoError(t, err)

	ctx := context.Background()
	now := time.Now()
	require.NoError(t, f.Append(ctx, types.SessionEvent(types.EventSessionStart, now)))
	require.NoError(t, f.Append(ctx, types.AnimalEvent(99, types.EventEntry, now)))
	require.NoError(t, f.Close())

	// Reopening appends rather than truncates.
	f, err = textlog.OpenEventFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Append(ctx, types.SessionEvent(types.EventSessionEnd, now)))
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	fields := strings.Split(lines[0], "\t")
	require.Len(t, fields, 4)
	assert.Equal(t, types.SessionTag, fields[0])
	assert.Equal(t, "SeshStart", fields[3])
	assert.True(t, strings.HasPrefix(lines[1], "99\t"))
	assert.True(t, strings.HasSuffix(lines[2], "\tSeshEnd"))
}

func TestStatsFileRewrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "currentStats_c1.txt")
	sf := textlog.NewStatsFile(path)
	ctx := context.Background()

	require.NoError(t, sf.WriteStats(ctx, []types.Animal{
		{Tag: 1, Entries: 3, EntranceRewards: 2, HeadFixes: 1, HeadFixedRewards: 6},
		{Tag: 2, Entries: 1},
	}))
	require.NoError(t, sf.WriteStats(ctx, []types.Animal{
		{Tag: 1, Entries: 4, EntranceRewards: 2, HeadFixes: 2, HeadFixedRewards: 12},
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Mouse_ID\tentries\tent_rew\thfixes\thf_rew\n1\t4\t2\t2\t12\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}
