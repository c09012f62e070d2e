package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhaobenny/datatop/internal/accounting"
	"github.com/zhaobenny/datatop/internal/model"
	"github.com/zhaobenny/datatop/internal/provider"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, ""},
		{59 * time.Second, ""},
		{90 * time.Second, "1m"},
		{time.Hour, "1h"},
		{24 * time.Hour, "1d"},
		{-26 * time.Hour, "-1d 2h"},
		{9*24*time.Hour + 22*time.Hour + 56*time.Minute + 59*time.Second, "9d 22h 56m"},
		{24*time.Hour + 5*time.Minute, "1d 5m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "FormatDuration(%v)", tt.in)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.0 B"},
		{1023, "1023.0 B"},
		{1024, "1.0 KiB"},
		{1 << 20, "1.0 MiB"},
		{-2048, "-2.0 KiB"},
		{30 << 30, "30.0 GiB"},
		{2048 << 30, "2048.0 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in), "FormatSize(%v)", tt.in)
	}
	assert.Equal(t, "1.0 GiB/day", FormatRate(1<<30))
}

func workedReport(t *testing.T, target *time.Time) *model.UsageReport {
	t.Helper()
	server := time.Date(2017, time.January, 2, 4, 36, 0, 0, provider.Location)
	r, err := accounting.Compute(model.PlanSnapshot{
		Active:               true,
		Period:               30,
		ExpirationDate:       "11.01.2017 godzina 20:26",
		TotalLimit:           30720,
		TotalLimitsUsed:      6554,
		TotalLimitsRemaining: 24166,
		ServerTime:           &server,
		CapturedAt:           server.Add(-3 * time.Second),
	}, accounting.Options{Target: target})
	require.NoError(t, err)
	return r
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, workedReport(t, nil), ReportOptions{})

	assert.Equal(t, `Activation: 2016-12-12 20:26
Expiration: 2017-01-11 20:26
Now:        2017-01-02 04:36 (server)
Elapsed:    20d 8h 10m
Remaining:  9d 15h 50m
Size: 30.0 GiB, 1.0 GiB/day
Used: 6.4 GiB, 322.2 MiB/day
Remaining: 23.6 GiB, 2.4 GiB/day
`, buf.String())
}

func TestPrintReportWithTargetAndSkew(t *testing.T) {
	target := time.Date(2017, time.January, 7, 0, 0, 0, 0, provider.Location)

	var buf bytes.Buffer
	PrintReport(&buf, workedReport(t, &target), ReportOptions{ShowSkew: true})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 10)
	assert.Equal(t, "Skew:       +3s", lines[3])
	assert.Equal(t, "Remaining:  9d 15h 50m", lines[5])
	assert.Equal(t, "Target: 2017-01-07 00:00 (4d 19h 24m)", lines[6])
	assert.Equal(t, "Remaining: 23.6 GiB, 4.9 GiB/day", lines[9])
}

func TestPrintReportLocalTime(t *testing.T) {
	r := workedReport(t, nil)
	r.ServerTimeUsed = false

	var buf bytes.Buffer
	PrintReport(&buf, r, ReportOptions{ShowSkew: true})
	assert.Contains(t, buf.String(), "Now:        2017-01-02 04:36 (local)\n")
	assert.Contains(t, buf.String(), "Skew:       unknown\n")
}

func TestPrintReportInactive(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, &model.UsageReport{Active: false}, ReportOptions{})
	assert.Equal(t, "No active data package.\n", buf.String())
}

func TestPrintReportJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintReportJSON(&buf, workedReport(t, nil)))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, true, out["active"])
	assert.Equal(t, true, out["server_time"])
	assert.Equal(t, float64(1757400), out["elapsed_seconds"])
	assert.Equal(t, float64(834600), out["remaining_seconds"])
	assert.Equal(t, float64(30720<<20), out["total_bytes"])
	assert.NotContains(t, out, "target")

	buf.Reset()
	require.NoError(t, PrintReportJSON(&buf, &model.UsageReport{}))
	assert.JSONEq(t, `{
		"active": false,
		"server_time": false,
		"elapsed_seconds": 0,
		"remaining_seconds": 0,
		"total_bytes": 0,
		"used_bytes": 0,
		"remaining_bytes": 0,
		"total_bytes_per_day": 0,
		"used_bytes_per_day": 0,
		"remaining_bytes_per_day": 0
	}`, buf.String())
}

func historyEntries() []model.HistoryEntry {
	at := time.Date(2017, time.January, 2, 4, 36, 0, 0, provider.Location)
	return []model.HistoryEntry{{
		ID:             "a",
		RecordedAt:     at,
		Now:            at,
		Activation:     time.Date(2016, time.December, 12, 20, 26, 0, 0, provider.Location),
		Expiration:     time.Date(2017, time.January, 11, 20, 26, 0, 0, provider.Location),
		TotalBytes:     30720 << 20,
		UsedBytes:      6554 << 20,
		RemainingBytes: 24166 << 20,
	}}
}

func TestPrintHistory(t *testing.T) {
	t.Setenv("COLUMNS", "200")

	var buf bytes.Buffer
	PrintHistory(&buf, historyEntries(), TableOptions{})

	out := buf.String()
	assert.Contains(t, out, "Activation")
	assert.Contains(t, out, "2016-12-12 20:26")
	assert.Contains(t, out, "30.0 GiB")
	assert.NotContains(t, out, "Compact mode")
}

func TestPrintHistoryCompact(t *testing.T) {
	var buf bytes.Buffer
	PrintHistory(&buf, historyEntries(), TableOptions{ForceCompact: true})

	out := buf.String()
	assert.NotContains(t, out, "Activation")
	assert.Contains(t, out, "6.4 GiB")
	assert.Contains(t, out, "Compact mode")

	t.Setenv("COLUMNS", "80")
	buf.Reset()
	PrintHistory(&buf, historyEntries(), TableOptions{})
	assert.Contains(t, buf.String(), "Compact mode")
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	PrintHistory(&buf, nil, TableOptions{})
	assert.Equal(t, "No reports recorded.\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintHistoryJSON(&buf, nil))
	assert.JSONEq(t, `{"reports":[]}`, buf.String())
}
