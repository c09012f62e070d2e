package model

import "time"

// PlanSnapshot is the usage response of the provider as fetched in one session
type PlanSnapshot struct {
	Active               bool   `json:"active"`
	Period               int    `json:"period"`         // Days
	ExpirationDate       string `json:"expirationDate"` // Provider layout, no zone
	TotalLimit           int64  `json:"totalLimit"`     // MiB
	TotalLimitsUsed      int64  `json:"totalLimitsUsed"`
	TotalLimitsRemaining int64  `json:"totalLimitsRemaining"`

	// ServerTime is the server's Date header of the usage response, if it sent one
	ServerTime *time.Time `json:"serverTime,omitempty"`
	// CapturedAt is the local clock when the usage response arrived
	CapturedAt time.Time `json:"capturedAt"`
}

// UsageReport contains the metrics derived from a PlanSnapshot
type UsageReport struct {
	Active bool `json:"active"`

	Activation time.Time `json:"activation"`
	Expiration time.Time `json:"expiration"`
	Now        time.Time `json:"now"`
	Horizon    time.Time `json:"horizon"` // Expiration, or the caller's target date

	Period          time.Duration `json:"period"`
	Elapsed         time.Duration `json:"elapsed"`
	Remaining       time.Duration `json:"remaining"`
	HorizonDuration time.Duration `json:"horizonDuration"`
	HasTarget       bool          `json:"hasTarget"`

	TotalBytes     int64 `json:"totalBytes"`
	UsedBytes      int64 `json:"usedBytes"`
	RemainingBytes int64 `json:"remainingBytes"`

	// Bytes per day
	TotalPerDay     float64 `json:"totalPerDay"`
	UsedPerDay      float64 `json:"usedPerDay"`
	RemainingPerDay float64 `json:"remainingPerDay"`

	ServerTimeUsed bool `json:"serverTimeUsed"`
	// Skew is server time minus local capture time; zero if unknown
	Skew time.Duration `json:"skew"`
}

// HistoryEntry is one stored report
type HistoryEntry struct {
	ID             string    `json:"id"`
	RecordedAt     time.Time `json:"recorded_at"`
	Now            time.Time `json:"now"` // Reference instant of the report
	Activation     time.Time `json:"activation"`
	Expiration     time.Time `json:"expiration"`
	TotalBytes     int64     `json:"total_bytes"`
	UsedBytes      int64     `json:"used_bytes"`
	RemainingBytes int64     `json:"remaining_bytes"`
}
