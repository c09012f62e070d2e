package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/zhaobenny/datatop/internal/model"
)

const (
	compactThreshold = 100 // Terminal width below which compact mode kicks in
	defaultWidth     = 120
	timeWidth        = 16
	sizeWidth        = 10
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
}

// shouldUseCompact determines if compact mode should be used
func shouldUseCompact(opts TableOptions) bool {
	if opts.ForceCompact {
		return true
	}
	return getTerminalWidth() < compactThreshold
}

// PrintHistory prints stored reports as a table, newest first as given
func PrintHistory(w io.Writer, entries []model.HistoryEntry, opts TableOptions) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No reports recorded.")
		return
	}

	if shouldUseCompact(opts) {
		// Compact: Now, Used, Remaining
		rule := strings.Repeat("─", timeWidth+2+sizeWidth+2+sizeWidth)
		fmt.Fprintf(w, "%-*s  %*s  %*s\n", timeWidth, "Now", sizeWidth, "Used", sizeWidth, "Remaining")
		fmt.Fprintln(w, rule)
		for _, e := range entries {
			fmt.Fprintf(w, "%-*s  %*s  %*s\n",
				timeWidth, FormatTime(e.Now),
				sizeWidth, FormatSize(float64(e.UsedBytes)),
				sizeWidth, FormatSize(float64(e.RemainingBytes)))
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "(Compact mode - expand terminal for full view)")
		return
	}

	// Full: Now, Activation, Expiration, Size, Used, Remaining
	rule := strings.Repeat("─", 3*(timeWidth+2)+3*sizeWidth+2*2)
	fmt.Fprintf(w, "%-*s  %-*s  %-*s  %*s  %*s  %*s\n",
		timeWidth, "Now", timeWidth, "Activation", timeWidth, "Expiration",
		sizeWidth, "Size", sizeWidth, "Used", sizeWidth, "Remaining")
	fmt.Fprintln(w, rule)
	for _, e := range entries {
		fmt.Fprintf(w, "%-*s  %-*s  %-*s  %*s  %*s  %*s\n",
			timeWidth, FormatTime(e.Now),
			timeWidth, FormatTime(e.Activation),
			timeWidth, FormatTime(e.Expiration),
			sizeWidth, FormatSize(float64(e.TotalBytes)),
			sizeWidth, FormatSize(float64(e.UsedBytes)),
			sizeWidth, FormatSize(float64(e.RemainingBytes)))
	}
}

// PrintHistoryJSON outputs stored reports as JSON
func PrintHistoryJSON(w io.Writer, entries []model.HistoryEntry) error {
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(struct {
		Reports []model.HistoryEntry `json:"reports"`
	}{entries})
}
