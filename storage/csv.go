package storage

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/tailored-agentic-units/datashelf/dataset"
)

const (
	extCSV   = ".csv"
	extGzip  = ".csv.gz"
	utf8BOM  = "\ufeff"
	bufBytes = 256 << 10
)

// Extensions lists the recognized dataset file suffixes in lookup order.
var Extensions = []string{extCSV, extGzip}

// TrimExtension strips a recognized dataset suffix from name. The second
// result is false when name carries no such suffix.
func TrimExtension(name string) (string, bool) {
	for _, ext := range []string{extGzip, extCSV} {
		if id, ok := strings.CutSuffix(name, ext); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// decompress wraps r with a gzip reader when name is compressed.
func decompress(name string, r io.Reader) (io.Reader, func() error, error) {
	if !strings.HasSuffix(name, extGzip) {
		return r, func() error { return nil }, nil
	}
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return zr, zr.Close, nil
}

func newCSVReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(bufio.NewReaderSize(r, bufBytes))
	cr.FieldsPerRecord = -1
	return cr
}

// readHeader returns the column names on the first line of a CSV stream.
func readHeader(name string, r io.Reader) ([]string, error) {
	rd, closeFn, err := decompress(name, r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	header, err := newCSVReader(rd).Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return nil, err
	}
	return cleanHeader(header), nil
}

// decodeTable reads a CSV stream into a table, keeping rows that satisfy q.
func decodeTable(id, name string, r io.Reader, q dataset.Query) (*dataset.Table, error) {
	rd, closeFn, err := decompress(name, r)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	cr := newCSVReader(rd)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: empty file", name)
	}
	if err != nil {
		return nil, err
	}
	header = cleanHeader(header)

	match, err := q.Matcher(header)
	if err != nil {
		return nil, err
	}

	table := &dataset.Table{ID: id, Columns: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if match(record) {
			table.Rows = append(table.Rows, record)
		}
	}
	table.Total = len(table.Rows)
	return table, nil
}

func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = strings.TrimSpace(h)
	}
	return out
}
