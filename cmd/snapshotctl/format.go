package main

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/okian/boxboard/internal/client"
	"github.com/okian/boxboard/internal/domain/freshness"
	"github.com/okian/boxboard/internal/domain/snapshot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatHuman OutputFormat = "human"
)

// HistoryResponse lists the stored versions of one key.
type HistoryResponse struct {
	SeasonID int              `json:"season_id"`
	StatKey  string           `json:"stat_key"`
	Versions []client.Version `json:"versions"`
}

// WarmResponse reports a multi-season rebuild.
type WarmResponse struct {
	Seasons map[int]freshness.BatchResult `json:"seasons"`
	Errors  map[int]string                `json:"errors,omitempty"`
}

// FormatResponse formats a response according to the specified format
func FormatResponse(resp any, format OutputFormat) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(resp)
	case FormatHuman:
		return formatHuman(resp)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}

func formatJSON(resp any) (string, error) {
	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func formatHuman(resp any) (string, error) {
	switch v := resp.(type) {
	case *freshness.BatchResult:
		return formatBatchHuman(v), nil
	case *HistoryResponse:
		return formatHistoryHuman(v), nil
	case *client.RollbackResult:
		return formatRollbackHuman(v), nil
	case *WarmResponse:
		return formatWarmHuman(v), nil
	default:
		// For unknown types, fall back to JSON
		return formatJSON(resp)
	}
}

func formatBatchHuman(r *freshness.BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Season %d: %d built, %d failed\n", r.SeasonID, len(r.Built), len(r.Failed))
	for _, k := range r.Built {
		fmt.Fprintf(&b, "  ok      %s\n", k)
	}
	for _, k := range r.Failed {
		fmt.Fprintf(&b, "  failed  %s: %s\n", k, r.Errors[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistoryHuman(r *HistoryResponse) string {
	if len(r.Versions) == 0 {
		return fmt.Sprintf("No snapshots stored for %s in season %d", r.StatKey, r.SeasonID)
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s, season %d\n\n", r.StatKey, r.SeasonID)
	tw := tabwriter.NewWriter(&buf, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ETAG\tBUILT\tROWS\tSCHEMA\tFORMATTER\tPROVIDER")
	for i, v := range r.Versions {
		etag := v.ETag
		if i == 0 {
			etag += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			etag, v.BuiltAt.UTC().Format(time.RFC3339), v.Rows,
			v.SchemaVersion, v.FormatterVersion, v.Manifest.Provider)
	}
	_ = tw.Flush()
	return strings.TrimRight(buf.String(), "\n")
}

func formatRollbackHuman(r *client.RollbackResult) string {
	return fmt.Sprintf("Restored %s (built %s), removed %d newer version(s)",
		r.Restored.ETag, r.Restored.BuiltAt.UTC().Format(time.RFC3339), r.Deleted)
}

func formatWarmHuman(r *WarmResponse) string {
	seasons := make([]int, 0, len(r.Seasons)+len(r.Errors))
	for s := range r.Seasons {
		seasons = append(seasons, s)
	}
	for s := range r.Errors {
		seasons = append(seasons, s)
	}
	sort.Ints(seasons)

	lines := make([]string, 0, len(seasons))
	for _, s := range seasons {
		if msg, failed := r.Errors[s]; failed {
			lines = append(lines, fmt.Sprintf("Season %d: error: %s", s, msg))
			continue
		}
		res := r.Seasons[s]
		lines = append(lines, formatBatchHuman(&res))
	}
	return strings.Join(lines, "\n")
}

// versionOf summarizes a locally read snapshot the way the API does.
func versionOf(st snapshot.Stored) client.Version {
	v := client.Version{ID: st.ID.String(), ETag: st.ETag, Manifest: st.Manifest}
	if s := st.Snapshot; s != nil {
		v.BuiltAt = s.BuiltAt
		v.SchemaVersion = s.SchemaVersion
		v.FormatterVersion = s.FormatterVersion
		v.Rows = len(s.Rows)
	}
	return v
}
