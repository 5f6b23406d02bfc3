package perf

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
)

// Format selects the export encoding
type Format string

// Supported export formats
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Export serializes the current report. JSON is pretty-printed; CSV is a
// flattened table covering the per-endpoint API stats and the memory
// summary.
func (c *Collector) Export(format Format) ([]byte, error) {
	report := c.Snapshot()

	switch format {
	case FormatJSON:
		return json.MarshalIndent(report, "", "  ")
	case FormatCSV:
		return exportCSV(report)
	default:
		return nil, fmt.Errorf("unsupported export format: %q", format)
	}
}

func exportCSV(report Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"section", "key", "count", "average", "min", "max", "p95", "p99"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for endpoint, stats := range report.API {
		row := []string{
			"api",
			endpoint,
			strconv.Itoa(stats.Count),
			formatFloat(stats.Average),
			formatFloat(stats.Min),
			formatFloat(stats.Max),
			formatFloat(stats.P95),
			formatFloat(stats.P99),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	mem := report.Memory
	memRow := []string{
		"memory",
		"used_bytes",
		strconv.Itoa(mem.Count),
		strconv.FormatInt(mem.AverageUsed, 10),
		strconv.FormatInt(mem.CurrentUsed, 10),
		strconv.FormatInt(mem.PeakUsed, 10),
		"",
		"",
	}
	if err := w.Write(memRow); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
