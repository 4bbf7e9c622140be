package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// isoMillis is ISO-8601 in UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FormatLines renders entries as "[15:04:05] Speaker: text" lines for the clipboard.
func FormatLines(entries []Entry, speakers *Registry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05"), speakers.Name(e.Speaker), e.Text))
	}
	return strings.Join(lines, "\n")
}

// ExportEntry is one transcript line in the JSON export document.
type ExportEntry struct {
	ID           int64   `json:"id"`
	Text         string  `json:"text"`
	OriginalText string  `json:"originalText"`
	Confidence   float64 `json:"confidence"`
	Speaker      string  `json:"speaker"`
	Timestamp    string  `json:"timestamp"`
	Processed    bool    `json:"processed"`
}

// ExportDocument is the structured export payload.
type ExportDocument struct {
	ExportDate  string        `json:"exportDate"`
	Settings    any           `json:"settings"`
	Transcripts []ExportEntry `json:"transcripts"`
}

// BuildExport assembles the export document. Speaker ids resolve to display
// names and fall back to the raw id when unregistered.
func BuildExport(entries []Entry, speakers *Registry, settings any, now time.Time) ExportDocument {
	doc := ExportDocument{
		ExportDate:  now.UTC().Format(isoMillis),
		Settings:    settings,
		Transcripts: make([]ExportEntry, 0, len(entries)),
	}
	for _, e := range entries {
		name := e.Speaker
		if s, ok := speakers.Lookup(e.Speaker); ok {
			name = s.Name
		}
		doc.Transcripts = append(doc.Transcripts, ExportEntry{
			ID:           e.ID,
			Text:         e.Text,
			OriginalText: e.OriginalText,
			Confidence:   e.Confidence,
			Speaker:      name,
			Timestamp:    e.Timestamp.UTC().Format(isoMillis),
			Processed:    true,
		})
	}
	return doc
}

// MarshalExport renders the document with two-space indentation.
func MarshalExport(doc ExportDocument) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode export: %w", err)
	}
	return data, nil
}

// ExportFilename returns transcript_YYYY-MM-DD.json for the given day.
func ExportFilename(now time.Time) string {
	return "transcript_" + now.Format("2006-01-02") + ".json"
}
