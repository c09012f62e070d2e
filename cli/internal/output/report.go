package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/zhaobenny/datatop/internal/model"
)

// ReportOptions controls report display
type ReportOptions struct {
	// ShowSkew adds the server/local clock difference
	ShowSkew bool
}

// PrintReport writes the text report for r
func PrintReport(w io.Writer, r *model.UsageReport, opts ReportOptions) {
	if !r.Active {
		fmt.Fprintln(w, "No active data package.")
		return
	}

	source := "local"
	if r.ServerTimeUsed {
		source = "server"
	}

	fmt.Fprintf(w, "Activation: %s\n", FormatTime(r.Activation))
	fmt.Fprintf(w, "Expiration: %s\n", FormatTime(r.Expiration))
	fmt.Fprintf(w, "Now:        %s (%s)\n", FormatTime(r.Now), source)
	if opts.ShowSkew {
		fmt.Fprintf(w, "Skew:       %s\n", formatSkew(r))
	}
	fmt.Fprintf(w, "Elapsed:    %s\n", FormatDuration(r.Elapsed))
	fmt.Fprintf(w, "Remaining:  %s\n", FormatDuration(r.Remaining))
	if r.HasTarget {
		fmt.Fprintf(w, "Target: %s (%s)\n", FormatTime(r.Horizon), FormatDuration(r.HorizonDuration))
	}

	fmt.Fprintf(w, "Size: %s, %s\n", FormatSize(float64(r.TotalBytes)), FormatRate(r.TotalPerDay))
	fmt.Fprintf(w, "Used: %s, %s\n", FormatSize(float64(r.UsedBytes)), FormatRate(r.UsedPerDay))
	fmt.Fprintf(w, "Remaining: %s, %s\n", FormatSize(float64(r.RemainingBytes)), FormatRate(r.RemainingPerDay))
}

func formatSkew(r *model.UsageReport) string {
	if !r.ServerTimeUsed {
		return "unknown"
	}
	skew := r.Skew.Round(time.Second)
	if skew >= 0 {
		return "+" + skew.String()
	}
	return skew.String()
}

// JSONReport is the machine readable report. Durations are in seconds.
type JSONReport struct {
	Active           bool       `json:"active"`
	Activation       *time.Time `json:"activation,omitempty"`
	Expiration       *time.Time `json:"expiration,omitempty"`
	Now              *time.Time `json:"now,omitempty"`
	Target           *time.Time `json:"target,omitempty"`
	ServerTime       bool       `json:"server_time"`
	SkewSeconds      float64    `json:"skew_seconds,omitempty"`
	ElapsedSeconds   int64      `json:"elapsed_seconds"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	TargetSeconds    int64      `json:"target_seconds,omitempty"`
	TotalBytes       int64      `json:"total_bytes"`
	UsedBytes        int64      `json:"used_bytes"`
	RemainingBytes   int64      `json:"remaining_bytes"`
	TotalPerDay      float64    `json:"total_bytes_per_day"`
	UsedPerDay       float64    `json:"used_bytes_per_day"`
	RemainingPerDay  float64    `json:"remaining_bytes_per_day"`
}

// NewJSONReport converts r for JSON output
func NewJSONReport(r *model.UsageReport) JSONReport {
	if !r.Active {
		return JSONReport{}
	}

	out := JSONReport{
		Active:           true,
		Activation:       &r.Activation,
		Expiration:       &r.Expiration,
		Now:              &r.Now,
		ServerTime:       r.ServerTimeUsed,
		SkewSeconds:      r.Skew.Seconds(),
		ElapsedSeconds:   int64(r.Elapsed / time.Second),
		RemainingSeconds: int64(r.Remaining / time.Second),
		TotalBytes:       r.TotalBytes,
		UsedBytes:        r.UsedBytes,
		RemainingBytes:   r.RemainingBytes,
		TotalPerDay:      r.TotalPerDay,
		UsedPerDay:       r.UsedPerDay,
		RemainingPerDay:  r.RemainingPerDay,
	}
	if r.HasTarget {
		out.Target = &r.Horizon
		out.TargetSeconds = int64(r.HorizonDuration / time.Second)
	}
	return out
}

// PrintReportJSON writes r as indented JSON
func PrintReportJSON(w io.Writer, r *model.UsageReport) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(NewJSONReport(r))
}
