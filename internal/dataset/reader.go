package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"scoregate/domain/core"
	domainDataset "scoregate/domain/dataset"
)

// ReadFrameFile opens path and parses it as a CSV frame.
func ReadFrameFile(path string) (*domainDataset.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewNotFoundError("file", path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	frame, err := ReadFrame(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return frame, nil
}

// ReadFrame parses CSV data with a header row. The id, era and data_type
// columns are kept as text; every other column must be numeric, with empty
// cells read as NaN.
func ReadFrame(r io.Reader) (*domainDataset.Frame, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, core.NewEmptyError("csv has no header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	header = append([]string(nil), header...)
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	frame := domainDataset.NewFrame(header)
	if len(frame.Strings)+len(frame.Numbers) != len(header) {
		return nil, core.NewSchemaError("csv", "duplicate column names")
	}

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, core.NewSchemaError("csv", err.Error())
		}
		rows++
		for i, name := range header {
			cell := strings.TrimSpace(record[i])
			if domainDataset.IsStringColumn(name) {
				frame.Strings[name] = append(frame.Strings[name], cell)
				continue
			}
			value, err := parseCell(cell)
			if err != nil {
				return nil, core.NewSchemaError("csv", fmt.Sprintf("row %d column %s: %v", rows, name, err))
			}
			frame.Numbers[name] = append(frame.Numbers[name], value)
		}
	}
	frame.SetRows(rows)
	return frame, nil
}

func parseCell(cell string) (float64, error) {
	if cell == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}
