package accounting

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhaobenny/datatop/internal/model"
	"github.com/zhaobenny/datatop/internal/provider"
)

const mib = 1 << 20

func warsaw(year int, month time.Month, day, hour, min int) time.Time {
	return time.Date(year, month, day, hour, min, 0, 0, provider.Location)
}

func exampleSnapshot() model.PlanSnapshot {
	server := warsaw(2017, time.January, 2, 4, 36)
	return model.PlanSnapshot{
		Active:               true,
		Period:               30,
		ExpirationDate:       "11.01.2017 godzina 20:26",
		TotalLimit:           30720,
		TotalLimitsUsed:      6554,
		TotalLimitsRemaining: 24166,
		ServerTime:           &server,
		CapturedAt:           server.Add(-3 * time.Second),
	}
}

func TestParseExpiration(t *testing.T) {
	got, err := ParseExpiration("11.01.2017 godzina 20:26")
	require.NoError(t, err)

	assert.Equal(t, warsaw(2017, time.January, 11, 20, 26), got)
	assert.Equal(t, "2017-01-11T19:26:00Z", got.UTC().Format(time.RFC3339))
}

func TestParseExpirationInvalid(t *testing.T) {
	for _, value := range []string{
		"",
		"11.01.2017 20:26",
		"2017-01-11 godzina 20:26",
		"1.01.2017 godzina 20:26",
		"11.01.2017 godzina 9:26",
		"11.01.2017 o godzinie 20:26",
		"32.01.2017 godzina 20:26",
		"11.13.2017 godzina 20:26",
		"11.01.2017 godzina 20:26 ",
	} {
		t.Run(value, func(t *testing.T) {
			_, err := ParseExpiration(value)
			require.Error(t, err)

			var malformed *model.MalformedResponseError
			require.True(t, errors.As(err, &malformed))
			assert.Equal(t, "expirationDate", malformed.Field)
			assert.Equal(t, value, malformed.Value)
		})
	}
}

func TestComputeActivation(t *testing.T) {
	report, err := Compute(exampleSnapshot(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "2016-12-12 20:26", report.Activation.Format("2006-01-02 15:04"))
	assert.Equal(t, provider.Location, report.Activation.Location())
}

func TestComputeActivationAcrossDST(t *testing.T) {
	snap := exampleSnapshot()
	snap.ExpirationDate = "15.04.2017 godzina 12:00"

	report, err := Compute(snap, Options{})
	require.NoError(t, err)

	// Civil subtraction keeps the wall clock even though March 26 is one hour short
	assert.Equal(t, warsaw(2017, time.March, 16, 12, 0), report.Activation)
	assert.Equal(t, 30*24*time.Hour-time.Hour, report.Expiration.Sub(report.Activation))
	assert.Equal(t, 30*24*time.Hour, report.Period)
}

func TestComputeWorkedExample(t *testing.T) {
	report, err := Compute(exampleSnapshot(), Options{})
	require.NoError(t, err)

	assert.True(t, report.Active)
	assert.True(t, report.ServerTimeUsed)
	assert.Equal(t, 3*time.Second, report.Skew)

	assert.Equal(t, 20*24*time.Hour+8*time.Hour+10*time.Minute, report.Elapsed)
	assert.Equal(t, 9*24*time.Hour+15*time.Hour+50*time.Minute, report.Remaining)
	assert.Equal(t, report.Expiration, report.Horizon)
	assert.Equal(t, report.Remaining, report.HorizonDuration)

	assert.Equal(t, int64(30720)*mib, report.TotalBytes)
	assert.Equal(t, int64(6554)*mib, report.UsedBytes)
	assert.Equal(t, int64(24166)*mib, report.RemainingBytes)
	assert.Equal(t, report.TotalBytes, report.UsedBytes+report.RemainingBytes)

	assert.InDelta(t, 1024.0, report.TotalPerDay/mib, 1e-9)
	assert.InDelta(t, 6554.0/(1757400.0/86400.0), report.UsedPerDay/mib, 1e-6)
	assert.InDelta(t, 24166.0/(834600.0/86400.0), report.RemainingPerDay/mib, 1e-6)
}

func TestComputeTargetOnlyChangesRemainingRate(t *testing.T) {
	target := warsaw(2017, time.January, 7, 4, 36)

	report, err := Compute(exampleSnapshot(), Options{Target: &target})
	require.NoError(t, err)

	assert.True(t, report.HasTarget)
	assert.Equal(t, target, report.Horizon)
	assert.Equal(t, 5*24*time.Hour, report.HorizonDuration)
	assert.InDelta(t, 24166.0/5, report.RemainingPerDay/mib, 1e-6)

	assert.Equal(t, 9*24*time.Hour+15*time.Hour+50*time.Minute, report.Remaining)
	assert.InDelta(t, 1024.0, report.TotalPerDay/mib, 1e-9)
	assert.InDelta(t, 6554.0/(1757400.0/86400.0), report.UsedPerDay/mib, 1e-6)
}

func TestComputeQuotaMismatch(t *testing.T) {
	snap := exampleSnapshot()
	snap.TotalLimitsUsed = 6000

	_, err := Compute(snap, Options{})
	require.Error(t, err)

	var malformed *model.MalformedResponseError
	require.True(t, errors.As(err, &malformed))
	assert.Equal(t, "usage", malformed.Step)

	mismatch, ok := malformed.Value.(model.QuotaMismatch)
	require.True(t, ok)
	assert.Equal(t, int64(30720)*mib, mismatch.Total)
	assert.Equal(t, int64(6000)*mib, mismatch.Used)
	assert.Equal(t, int64(24166)*mib, mismatch.Remaining)
	assert.Contains(t, err.Error(), "total")
}

func TestComputeOverdrawnPlan(t *testing.T) {
	snap := exampleSnapshot()
	snap.TotalLimit = 100
	snap.TotalLimitsUsed = 110
	snap.TotalLimitsRemaining = -10

	report, err := Compute(snap, Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(110*mib), report.UsedBytes)
	assert.Equal(t, int64(-10*mib), report.RemainingBytes)
	assert.Negative(t, report.RemainingPerDay)
}

func TestComputeExpiredPlanIsNotClamped(t *testing.T) {
	snap := exampleSnapshot()
	later := warsaw(2017, time.January, 12, 22, 26)
	snap.ServerTime = &later

	report, err := Compute(snap, Options{})
	require.NoError(t, err)

	assert.Equal(t, -26*time.Hour, report.Remaining)
	assert.Negative(t, report.RemainingPerDay)
}

func TestComputeFallsBackToCaptureTime(t *testing.T) {
	snap := exampleSnapshot()
	captured := *snap.ServerTime
	snap.ServerTime = nil
	snap.CapturedAt = captured

	report, err := Compute(snap, Options{})
	require.NoError(t, err)

	assert.False(t, report.ServerTimeUsed)
	assert.Zero(t, report.Skew)
	assert.True(t, captured.Equal(report.Now))
}

func TestComputeFallsBackToOptionsNow(t *testing.T) {
	snap := exampleSnapshot()
	now := *snap.ServerTime
	snap.ServerTime = nil
	snap.CapturedAt = time.Time{}

	report, err := Compute(snap, Options{Now: now})
	require.NoError(t, err)
	assert.Equal(t, 20*24*time.Hour+8*time.Hour+10*time.Minute, report.Elapsed)
}

func TestComputeInactive(t *testing.T) {
	report, err := Compute(model.PlanSnapshot{Active: false, ExpirationDate: "garbage"}, Options{})
	require.NoError(t, err)

	assert.False(t, report.Active)
	assert.Zero(t, report.TotalBytes)
}

func TestDailyRateZeroDuration(t *testing.T) {
	assert.Equal(t, 0.0, DailyRate(1024, 0))
	assert.Equal(t, 2048.0, DailyRate(1024, 12*time.Hour))
}

func TestParseTarget(t *testing.T) {
	got, err := ParseTarget("2017-01-07")
	require.NoError(t, err)
	assert.Equal(t, warsaw(2017, time.January, 7, 0, 0), got)

	got, err = ParseTarget("2017-01-07 04:36")
	require.NoError(t, err)
	assert.Equal(t, warsaw(2017, time.January, 7, 4, 36), got)

	_, err = ParseTarget("07.01.2017")
	assert.Error(t, err)
}
