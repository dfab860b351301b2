package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"
)

// Exporter serializes timeline rows for download.
type Exporter struct{}

// NewExporter builds an Exporter.
func NewExporter() *Exporter {
	return &Exporter{}
}

// WriteCSV renders the rows as a CSV document with a header line.
func (e *Exporter) WriteCSV(rows []TimelineRow) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"at", "actor_id", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, row := range rows {
		record := []string{
			row.At.Format(time.RFC3339),
			strconv.FormatInt(row.ActorID, 10),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			row.Meta,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
