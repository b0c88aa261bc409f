package archive

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"forecastbot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func opp(id, code, title string) *types.Opportunity {
	o := &types.Opportunity{ID: id, TargetCode: code, Fields: map[string]string{}}
	o.SetField("ID", id)
	o.SetField("NAICS", code)
	o.SetField("REQUIREMENTS_TITLE", title)
	return o
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func day(s string) time.Time {
	d, _ := time.Parse(dateLayout, s)
	return d
}

func TestArchiverWritesDatedCSV(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchiver(Config{Dir: dir, Columns: APFSColumns[:4], WriteLatest: true}, nil)
	require.NoError(t, err)

	batch := []*types.Opportunity{opp("F-1", "541612", "HR Support"), opp("F-2", "541511", "Dev, \"Ops\"")}
	batch[0].SetField("ORGANIZATION", "USCIS")

	paths, err := a.Write(context.Background(), day("2025-03-04"), batch)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "filtered_forecast_2025-03-04.csv"),
		filepath.Join(dir, "filtered_forecast.csv"),
	}, paths)

	rows := readCSV(t, paths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"APFS Number", "NAICS", "Component", "Title"}, rows[0])
	assert.Equal(t, []string{"F-1", "541612", "USCIS", "HR Support"}, rows[1])
	assert.Equal(t, []string{"F-2", "541511", "", "Dev, \"Ops\""}, rows[2])

	assert.Equal(t, rows, readCSV(t, paths[1]))
}

func TestArchiverEmptyBatchWritesHeader(t *testing.T) {
	a, err := NewArchiver(Config{Dir: t.TempDir(), Columns: APFSColumns}, nil)
	require.NoError(t, err)

	paths, err := a.Write(context.Background(), day("2025-03-04"), nil)
	require.NoError(t, err)
	rows := readCSV(t, paths[0])
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], len(APFSColumns))
}

func TestArchiverAutoColumns(t *testing.T) {
	a, err := NewArchiver(Config{Dir: t.TempDir()}, nil)
	require.NoError(t, err)

	o := &types.Opportunity{ID: "x", TargetCode: "541611", Fields: map[string]string{}}
	o.SetField("zeta", "z")
	o.SetField("alpha", "a")

	paths, err := a.Write(context.Background(), day("2025-03-04"), []*types.Opportunity{o})
	require.NoError(t, err)
	rows := readCSV(t, paths[0])
	assert.Equal(t, []string{"ID", "Code", "ALPHA", "ZETA"}, rows[0])
	assert.Equal(t, []string{"x", "541611", "a", "z"}, rows[1])
}

func TestArchiverSameDateReplacesOtherDateUntouched(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchiver(Config{Dir: dir, Columns: APFSColumns[:1]}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = a.Write(ctx, day("2025-03-03"), []*types.Opportunity{opp("old", "1", "")})
	require.NoError(t, err)
	_, err = a.Write(ctx, day("2025-03-04"), []*types.Opportunity{opp("a", "1", "")})
	require.NoError(t, err)
	_, err = a.Write(ctx, day("2025-03-04"), []*types.Opportunity{opp("b", "1", "")})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"APFS Number"}, {"b"}}, readCSV(t, a.Path(day("2025-03-04"), FormatCSV)))
	assert.Equal(t, [][]string{{"APFS Number"}, {"old"}}, readCSV(t, a.Path(day("2025-03-03"), FormatCSV)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestArchiverAtom(t *testing.T) {
	a, err := NewArchiver(Config{Dir: t.TempDir(), Formats: []string{FormatCSV, FormatAtom}, SiteURL: "https://apfs-cloud.dhs.gov/forecast/"}, nil)
	require.NoError(t, err)

	paths, err := a.Write(context.Background(), day("2025-03-04"), []*types.Opportunity{opp("F-1", "541612", "HR Support")})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.True(t, strings.HasSuffix(paths[1], "filtered_forecast_2025-03-04.atom"))

	data, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Contains(t, string(data), "<feed")
	assert.Contains(t, string(data), "HR Support")
}

func TestArchiverFailedFormatLeavesPreviousArtifacts(t *testing.T) {
	dir := t.TempDir()
	a, err := NewArchiver(Config{Dir: dir, Formats: []string{FormatCSV, FormatAtom}, Columns: APFSColumns[:1], WriteLatest: true}, nil)
	require.NoError(t, err)
	ctx := context.Background()
	date := day("2025-03-04")

	_, err = a.Write(ctx, date, []*types.Opportunity{opp("first", "1", "")})
	require.NoError(t, err)

	a.writers[FormatAtom] = func(io.Writer, time.Time, []*types.Opportunity) error {
		return errors.New("disk full")
	}
	paths, err := a.Write(ctx, date, []*types.Opportunity{opp("second", "1", "")})
	require.Error(t, err)
	assert.Empty(t, paths)

	assert.Equal(t, [][]string{{"APFS Number"}, {"first"}}, readCSV(t, a.Path(date, FormatCSV)))
	assert.Equal(t, [][]string{{"APFS Number"}, {"first"}}, readCSV(t, a.LatestPath()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestArchiverRejectsUnknownFormat(t *testing.T) {
	_, err := NewArchiver(Config{Dir: t.TempDir(), Formats: []string{"xlsx"}}, nil)
	require.Error(t, err)
	assert.True(t, types.IsConfigError(err))

	_, err = NewArchiver(Config{}, nil)
	assert.True(t, types.IsConfigError(err))
}

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func TestSweeperDeletesOnlyExpired(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir,
		"filtered_forecast_2025-01-01.csv",
		"filtered_forecast_2025-01-31.csv",
		"filtered_forecast_2025-02-01.atom",
		"filtered_forecast_2025-03-01.csv",
		"filtered_forecast.csv",
		"filtered_forecast_notadate.csv",
		"notes.txt",
	)

	s := NewSweeper(dir, "", 30, time.UTC, nil)
	res, err := s.Sweep(time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	sort.Strings(res.Deleted)
	assert.Equal(t, []string{"filtered_forecast_2025-01-01.csv", "filtered_forecast_2025-01-31.csv"}, res.Deleted)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, []string{"filtered_forecast_notadate.csv"}, res.Unparseable)
	assert.Empty(t, res.Failed)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var left []string
	for _, e := range entries {
		left = append(left, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"filtered_forecast_2025-02-01.atom",
		"filtered_forecast_2025-03-01.csv",
		"filtered_forecast.csv",
		"filtered_forecast_notadate.csv",
		"notes.txt",
	}, left)
}

func TestSweeperUsesZoneForDayBoundary(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "filtered_forecast_2025-02-01.csv")

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 2025-03-04 02:00 UTC is still 2025-03-03 in New York, so the cutoff is 2025-02-01.
	s := NewSweeper(dir, "", 30, ny, nil)
	res, err := s.Sweep(time.Date(2025, 3, 4, 2, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Equal(t, 1, res.Kept)
}

func TestSweeperCollectsDeleteFailures(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "filtered_forecast_2020-01-01.csv")

	s := NewSweeper(dir, "", 30, time.UTC, nil)
	s.remove = func(string) error { return errors.New("permission denied") }

	res, err := s.Sweep(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
	assert.Contains(t, res.Failed, "filtered_forecast_2020-01-01.csv")
}

func TestSweeperRemovesOrphanedTempFiles(t *testing.T) {
	dir := t.TempDir()
	stale := ".tmp-filtered_forecast_2025-03-01.csv-123456"
	fresh := ".tmp-filtered_forecast_2025-03-03.csv-654321"
	touch(t, dir, stale, fresh, "notes.txt")

	now := time.Now()
	old := now.Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, stale), old, old))

	s := NewSweeper(dir, "", 30, time.UTC, nil)
	res, err := s.Sweep(now)
	require.NoError(t, err)
	assert.Equal(t, []string{stale}, res.Orphans)
	assert.Empty(t, res.Unparseable)
	assert.Empty(t, res.Deleted)

	_, err = os.Stat(filepath.Join(dir, fresh))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, stale))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSweeperMissingDir(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "nope"), "", 30, time.UTC, nil)
	res, err := s.Sweep(time.Now())
	require.NoError(t, err)
	assert.Empty(t, res.Deleted)
}
