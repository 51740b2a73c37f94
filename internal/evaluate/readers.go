package evaluate

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// batchReader returns up to n records; an empty batch means end of input.
// Rows that cannot be parsed are reported through skip.
type batchReader func(n int) ([]*Record, error)

// openReader opens filePath in the given format. The returned closer must
// be called once the reader is drained.
func openReader(filePath string, format FileFormat, skip func(row int64, reason string)) (batchReader, io.Closer, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}

	var read batchReader
	switch format {
	case FormatCSV:
		read, err = csvReader(file, skip)
	case FormatParquet:
		read, err = parquetReader(file, skip)
	case FormatJSONL:
		read = jsonlReader(file, skip)
	default:
		err = fmt.Errorf("unsupported file format: %s", format)
	}
	if err != nil {
		file.Close()
		return nil, nil, err
	}
	return read, file, nil
}

// parseLabel accepts 0/1 and common boolean spellings
func parseLabel(raw string) (int64, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "pii", "sensitive":
		return 1, true
	case "0", "false", "no", "clean", "benign":
		return 0, true
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || (n != 0 && n != 1) {
		return 0, false
	}
	return n, true
}

// csvReader locates the text and label columns by header name
func csvReader(r io.Reader, skip func(int64, string)) (batchReader, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	textCol, labelCol, labelTextCol := -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "text":
			textCol = i
		case "label":
			labelCol = i
		case "label_text":
			labelTextCol = i
		}
	}
	if textCol < 0 || labelCol < 0 {
		return nil, fmt.Errorf("CSV header must contain text and label columns, got %v", header)
	}

	var row int64
	return func(n int) ([]*Record, error) {
		var batch []*Record
		for len(batch) < n {
			fields, err := reader.Read()
			if errors.Is(err, io.EOF) {
				break
			}
			row++
			if err != nil {
				skip(row, err.Error())
				continue
			}
			if textCol >= len(fields) || labelCol >= len(fields) {
				skip(row, "missing columns")
				continue
			}

			label, ok := parseLabel(fields[labelCol])
			if !ok {
				skip(row, "invalid label")
				continue
			}
			rec := &Record{Text: fields[textCol], Label: label, row: row}
			if labelTextCol >= 0 && labelTextCol < len(fields) {
				rec.LabelText = fields[labelTextCol]
			}
			batch = append(batch, rec)
		}
		return batch, nil
	}, nil
}

// parquetRecord is the row schema of Parquet datasets
type parquetRecord struct {
	Text      string `parquet:"text"`
	LabelText string `parquet:"label_text,optional"`
	Label     int64  `parquet:"label"`
}

// parquetReader reads rows with text and label columns
func parquetReader(file *os.File, skip func(int64, string)) (batchReader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("empty Parquet file")
	}

	reader := parquet.NewReader(file)

	var row int64
	done := false
	return func(n int) ([]*Record, error) {
		var batch []*Record
		for !done && len(batch) < n {
			var rec parquetRecord
			err := reader.Read(&rec)
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			row++
			if err != nil {
				// a corrupt page cannot be skipped reliably
				return batch, fmt.Errorf("failed to read Parquet row %d: %w", row, err)
			}
			if rec.Label != 0 && rec.Label != 1 {
				skip(row, "invalid label")
				continue
			}
			batch = append(batch, &Record{Text: rec.Text, LabelText: rec.LabelText, Label: rec.Label, row: row})
		}
		if done {
			_ = reader.Close()
		}
		return batch, nil
	}, nil
}

// jsonlRecord accepts numeric, boolean and string labels
type jsonlRecord struct {
	Text      *string         `json:"text"`
	LabelText string          `json:"label_text"`
	Label     json.RawMessage `json:"label"`
}

// jsonlReader reads one JSON object per line
func jsonlReader(r io.Reader, skip func(int64, string)) batchReader {
	decoder := json.NewDecoder(r)

	var row int64
	done := false
	return func(n int) ([]*Record, error) {
		var batch []*Record
		for !done && len(batch) < n {
			var raw jsonlRecord
			err := decoder.Decode(&raw)
			if errors.Is(err, io.EOF) {
				done = true
				break
			}
			row++
			if err != nil {
				// the decoder cannot resynchronise after a syntax error
				return batch, fmt.Errorf("failed to read JSON record %d: %w", row, err)
			}
			if raw.Text == nil {
				skip(row, "missing text")
				continue
			}

			label, ok := parseLabel(strings.Trim(string(raw.Label), `"`))
			if !ok {
				skip(row, "invalid label")
				continue
			}
			batch = append(batch, &Record{Text: *raw.Text, LabelText: raw.LabelText, Label: label, row: row})
		}
		return batch, nil
	}
}
