package csv

import (
	"encoding/csv"
	"errors"
	"io"
	"slices"
	"strings"

	"hermannm.dev/wrap"
)

// Reads rows of a CSV file whose field delimiter is not known up front.
type Reader struct {
	inner      *csv.Reader
	file       io.ReadSeeker
	currentRow int
}

func NewReader(csvFile io.ReadSeeker, skipHeaderRow bool) (*Reader, error) {
	delimiter, err := DeduceFieldDelimiter(csvFile, DelimiterRowsToCheck, DefaultDelimitersToCheck)
	if err != nil {
		return nil, err
	}

	reader := &Reader{inner: newInnerReader(csvFile, delimiter), file: csvFile, currentRow: 0}

	if skipHeaderRow {
		if _, err := reader.ReadHeaderRow(); err != nil {
			return nil, wrap.Error(err, "failed to skip CSV header row")
		}
	}

	return reader, nil
}

func newInnerReader(csvFile io.ReadSeeker, delimiter rune) *csv.Reader {
	reader := csv.NewReader(csvFile)
	reader.ReuseRecord = true
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	return reader
}

func (reader *Reader) Delimiter() rune {
	return reader.inner.Comma
}

// The returned row is reused by the next call, so callers must copy values they keep.
func (reader *Reader) ReadRow() (row []string, rowNumber int, done bool, err error) {
	reader.currentRow++

	row, err = reader.inner.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, true, nil
		} else {
			return nil, 0, false, err
		}
	}

	return row, reader.currentRow, false, nil
}

func (reader *Reader) ReadHeaderRow() (row []string, err error) {
	row, rowNumber, done, err := reader.ReadRow()
	if done {
		return nil, errors.New("csv file ended before header row")
	}
	if rowNumber != 1 {
		return nil, errors.New("tried to read header row after reading previous rows")
	}
	if err != nil {
		return nil, err
	}
	return trimHeader(row), nil
}

func trimHeader(row []string) []string {
	header := slices.Clone(row)
	for i, name := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
	}
	return header
}

func (reader *Reader) ResetReadPosition(skipHeaderRow bool) error {
	if _, err := reader.file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	reader.currentRow = 0
	reader.inner = newInnerReader(reader.file, reader.inner.Comma)

	if skipHeaderRow {
		if _, err := reader.ReadHeaderRow(); err != nil {
			return wrap.Error(err, "failed to skip CSV header row")
		}
	}

	return nil
}

// Reads the remaining rows of a file from the start, keying each row's values by the header
// row's column names. Blank values are left out, so they leave cells empty.
func (reader *Reader) ReadRowsByHeader() ([]map[string]any, error) {
	if err := reader.ResetReadPosition(false); err != nil {
		return nil, wrap.Error(err, "failed to reset CSV file")
	}

	header, err := reader.ReadHeaderRow()
	if err != nil {
		return nil, wrap.Error(err, "failed to read CSV column names from header row")
	}

	var rows []map[string]any
	for {
		row, rowNumber, done, err := reader.ReadRow()
		if done {
			break
		}
		if err != nil {
			return nil, wrap.Errorf(err, "failed to read row %d of CSV file", rowNumber)
		}
		if len(row) > len(header) {
			return nil, errors.New("row contains more fields than there are columns")
		}

		values := make(map[string]any, len(row))
		for i, value := range row {
			if strings.TrimSpace(value) != "" {
				values[header[i]] = value
			}
		}
		rows = append(rows, values)
	}

	return rows, nil
}
