package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	domainDataset "scoregate/domain/dataset"
)

// WriteFrame writes the frame as CSV in header order. NaN cells are written empty.
func WriteFrame(w io.Writer, frame *domainDataset.Frame) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(frame.Header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	record := make([]string, len(frame.Header))
	for row := 0; row < frame.Len(); row++ {
		for i, name := range frame.Header {
			if col, ok := frame.Strings[name]; ok {
				record[i] = col[row]
				continue
			}
			v := frame.Numbers[name][row]
			if math.IsNaN(v) {
				record[i] = ""
			} else {
				record[i] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", row, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFrameFile writes the frame to path, creating parent directories.
func WriteFrameFile(path string, frame *domainDataset.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := WriteFrame(f, frame); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
