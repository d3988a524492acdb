// package formatter renders playlists and failure records for the command line (CSV, JSON, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/playsync/internal/resilience"
	"github.com/desertthunder/playsync/internal/services"
	"github.com/desertthunder/playsync/internal/shared"
)

// Format names an output encoding accepted by the export and errors commands.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ParseFormat accepts "text", "csv" or "json" (case-insensitive). Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatCSV, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, s)
	}
}

// ExportToCSV converts a PlaylistExport to CSV format with columns: ID, Title, Artist, Album, Duration, ISRC
func ExportToCSV(export *services.PlaylistExport) ([]byte, error) {
	rows := make([][]string, 0, len(export.Tracks))
	for _, track := range export.Tracks {
		rows = append(rows, []string{
			track.ID,
			track.Title,
			track.Artist,
			track.Album,
			strconv.Itoa(track.Duration),
			track.ISRC,
		})
	}
	return writeCSV([]string{"ID", "Title", "Artist", "Album", "Duration", "ISRC"}, rows)
}

// ExportToText converts a PlaylistExport to plain text format
func ExportToText(export *services.PlaylistExport) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", export.Playlist.Name)
	if export.Playlist.Description != "" {
		fmt.Fprintf(&buf, "Description: %s\n", export.Playlist.Description)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(export.Tracks))

	for i, track := range export.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s [%s]\n", i+1, track.Artist, track.Title, formatDuration(track.Duration))
	}

	return buf.Bytes(), nil
}

// Export encodes a playlist in the given format.
func Export(export *services.PlaylistExport, format Format) ([]byte, error) {
	switch format {
	case FormatCSV:
		return ExportToCSV(export)
	case FormatJSON:
		return shared.MarshalJSON(export, true)
	default:
		return ExportToText(export)
	}
}

// WriteExport writes a playlist to path, or to w when path is empty.
//
// Returns the destination that was written ("-" for w).
func WriteExport(w io.Writer, export *services.PlaylistExport, format Format, path string) (string, error) {
	data, err := Export(export, format)
	if err != nil {
		return "", fmt.Errorf("failed to encode playlist: %w", err)
	}

	if path == "" {
		if _, err := w.Write(data); err != nil {
			return "", err
		}
		return "-", nil
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export file: %w", err)
	}
	return path, nil
}

// EventsToCSV renders persisted failures with columns: Timestamp, Context, Kind, Code, SubCode, Retryable, Message
func EventsToCSV(events []resilience.Event) ([]byte, error) {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Context,
			e.Kind.String(),
			e.Code,
			e.SubCode,
			strconv.FormatBool(e.Retryable),
			e.Message,
		})
	}
	return writeCSV([]string{"Timestamp", "Context", "Kind", "Code", "SubCode", "Retryable", "Message"}, rows)
}

// EventsToText renders one line per failure, most useful columns first.
func EventsToText(events []resilience.Event) []byte {
	var buf bytes.Buffer
	for _, e := range events {
		code := e.Code
		if e.SubCode != "" {
			code = e.SubCode
		}
		if code == "" {
			code = "-"
		}
		fmt.Fprintf(&buf, "%s  %-14s  %-24s  %-20s  %s\n",
			e.Timestamp.Local().Format(time.DateTime), e.Kind, orDash(e.Context), code, e.Message)
	}
	return buf.Bytes()
}

// RecordReport is the JSON shape printed by `errors classify --json`.
type RecordReport struct {
	Record         *resilience.Record        `json:"record"`
	Recommendation resilience.Recommendation `json:"recommendation"`
}

// RenderRecord describes a record and its recommended actions for a terminal.
//
// Only the user message is shown unless verbose is set, in which case the technical fields follow.
func RenderRecord(rec *resilience.Record, rcm resilience.Recommendation, verbose bool) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s\n", rec.UserMessage())
	if d, ok := rec.RetryAfter(); ok {
		fmt.Fprintf(&buf, "Retry after: %s\n", d.Round(time.Second))
	}

	if verbose {
		fmt.Fprintf(&buf, "\n  kind:       %s\n", rec.Kind())
		fmt.Fprintf(&buf, "  code:       %s\n", orDash(rec.Code()))
		fmt.Fprintf(&buf, "  sub-code:   %s\n", orDash(rec.SubCode()))
		fmt.Fprintf(&buf, "  extension:  %s\n", orDash(rec.Extension()))
		fmt.Fprintf(&buf, "  retryable:  %t\n", rec.Retryable())
		fmt.Fprintf(&buf, "  message:    %s\n", rec.Message())
		details := rec.Details()
		keys := make([]string, 0, len(details))
		for k := range details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&buf, "  %s: %v\n", k, details[k])
		}
	}

	buf.WriteString("\nSuggested:\n")
	for i, a := range rcm.Actions() {
		fmt.Fprintf(&buf, "  %d. %s (%s)\n", i+1, a.Label, a.Effect)
	}

	return buf.Bytes()
}

func writeCSV(headers []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("failed to write CSV record: %w", err)
	}

	return buf.Bytes(), nil
}

func formatDuration(seconds int) string {
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
