// Package serde turns rows into the bytes of a segment line.
package serde

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/CefBoud/monsink/types"
)

// Encoder appends one encoded row, newline terminated, to a buffer.
type Encoder interface {
	Encode(buf *bytes.Buffer, row types.Row) error
	// Extension is the file extension of segments holding encoded rows.
	Extension() string
}

// encoder names
const (
	CSV  = "csv"
	JSON = "json"
)

// GetEncoder returns the encoder registered under name. An empty name means CSV.
func GetEncoder(name string) (Encoder, error) {
	switch name {
	case CSV, "":
		return CSVEncoder{}, nil
	case JSON:
		return JSONEncoder{}, nil
	}
	return nil, fmt.Errorf("unknown format %q", name)
}

// CSVEncoder writes rows as RFC 4180 records.
type CSVEncoder struct{}

// Extension returns ".csv".
func (CSVEncoder) Extension() string { return ".csv" }

// Encode writes row as one CSV line.
func (CSVEncoder) Encode(buf *bytes.Buffer, row types.Row) error {
	cells := make([]string, len(row))
	for i, cell := range row {
		cells[i] = formatCell(cell)
	}
	w := csv.NewWriter(buf)
	if err := w.Write(cells); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// JSONEncoder writes each row as a JSON array on its own line.
type JSONEncoder struct{}

// Extension returns ".json".
func (JSONEncoder) Extension() string { return ".json" }

// Encode writes row as one JSON line.
func (JSONEncoder) Encode(buf *bytes.Buffer, row types.Row) error {
	if row == nil {
		row = types.Row{}
	}
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	buf.Write(b)
	buf.WriteByte('\n')
	return nil
}

// DecodeRow turns a message value into a row: a JSON array becomes its
// elements, anything else a single string cell.
func DecodeRow(value []byte) types.Row {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var row types.Row
		if err := json.Unmarshal(trimmed, &row); err == nil {
			return row
		}
	}
	if value == nil {
		return types.Row{nil}
	}
	return types.Row{string(value)}
}
