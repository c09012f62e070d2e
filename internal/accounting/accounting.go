// Package accounting turns a plan snapshot into usage metrics.
package accounting

import (
	"fmt"
	"regexp"
	"time"

	"github.com/zhaobenny/datatop/internal/model"
	"github.com/zhaobenny/datatop/internal/provider"
)

const (
	secondsPerDay = 86400
	mebibyteShift = 20
)

var expirationPattern = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4} godzina \d{2}:\d{2}$`)

// Options for Compute
type Options struct {
	// Now is used when the snapshot carries neither server nor capture time
	Now time.Time
	// Target replaces the expiration as the horizon of the remaining rate
	Target *time.Time
}

// ParseExpiration parses the provider's expiration date in the provider's timezone
func ParseExpiration(value string) (time.Time, error) {
	if !expirationPattern.MatchString(value) {
		return time.Time{}, malformedExpiration(value, nil)
	}
	t, err := time.ParseInLocation(provider.ExpirationLayout, value, provider.Location)
	if err != nil {
		return time.Time{}, malformedExpiration(value, err)
	}
	return t, nil
}

func malformedExpiration(value string, err error) error {
	return &model.MalformedResponseError{
		Step:  "usage",
		Field: "expirationDate",
		Value: value,
		Err:   err,
	}
}

// MiBToBytes converts the provider's mebibyte counters to bytes
func MiBToBytes(mib int64) int64 {
	return mib << mebibyteShift
}

// ReferenceTime picks the instant the report is computed against.
// Server time wins over the local capture time to avoid client clock skew.
func ReferenceTime(snap model.PlanSnapshot, fallback time.Time) (time.Time, bool) {
	if snap.ServerTime != nil {
		return *snap.ServerTime, true
	}
	if !snap.CapturedAt.IsZero() {
		return snap.CapturedAt, false
	}
	return fallback, false
}

// Compute derives a UsageReport from snap. A snapshot without an active
// package yields an inactive report and nothing else.
func Compute(snap model.PlanSnapshot, opts Options) (*model.UsageReport, error) {
	if !snap.Active {
		return &model.UsageReport{Active: false}, nil
	}

	expiration, err := ParseExpiration(snap.ExpirationDate)
	if err != nil {
		return nil, err
	}
	activation := expiration.AddDate(0, 0, -snap.Period)

	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	reference, fromServer := ReferenceTime(snap, now)

	total := MiBToBytes(snap.TotalLimit)
	used := MiBToBytes(snap.TotalLimitsUsed)
	remaining := MiBToBytes(snap.TotalLimitsRemaining)
	if used+remaining != total {
		return nil, &model.MalformedResponseError{
			Step:  "usage",
			Field: "totalLimit",
			Value: model.QuotaMismatch{Total: total, Used: used, Remaining: remaining},
		}
	}

	horizon := expiration
	if opts.Target != nil {
		horizon = opts.Target.In(provider.Location)
	}

	period := time.Duration(snap.Period) * secondsPerDay * time.Second
	report := &model.UsageReport{
		Active:          true,
		Activation:      activation,
		Expiration:      expiration,
		Now:             reference.In(provider.Location),
		Horizon:         horizon,
		Period:          period,
		Elapsed:         reference.Sub(activation),
		Remaining:       expiration.Sub(reference),
		HorizonDuration: horizon.Sub(reference),
		HasTarget:       opts.Target != nil,
		TotalBytes:      total,
		UsedBytes:       used,
		RemainingBytes:  remaining,
		ServerTimeUsed:  fromServer,
	}
	report.TotalPerDay = DailyRate(total, period)
	report.UsedPerDay = DailyRate(used, report.Elapsed)
	report.RemainingPerDay = DailyRate(remaining, report.HorizonDuration)

	if snap.ServerTime != nil && !snap.CapturedAt.IsZero() {
		report.Skew = snap.ServerTime.Sub(snap.CapturedAt)
	}

	return report, nil
}

// DailyRate spreads bytes evenly over d and returns bytes per day.
// A zero duration gives 0.
func DailyRate(bytes int64, d time.Duration) float64 {
	seconds := d.Seconds()
	if seconds == 0 {
		return 0
	}
	return float64(bytes) * secondsPerDay / seconds
}

// ParseTarget parses a user supplied target date, "2006-01-02" or
// "2006-01-02 15:04", in the provider's timezone.
func ParseTarget(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, value, provider.Location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid target date %q, use YYYY-MM-DD or \"YYYY-MM-DD HH:MM\"", value)
}
