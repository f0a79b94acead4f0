package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pevans/threadmood/postdate"
)

// ErrWrite is returned when a report cannot be written.
var ErrWrite = errors.New("failed to write report")

// Header is the first line of every report.
var Header = []string{"date", "score", "posts"}

// WriteCSV writes rows as comma-separated values with a header line.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	for _, row := range rows {
		record := []string{
			row.Date.String(),
			strconv.FormatFloat(row.Score, 'f', -1, 64),
			strconv.Itoa(row.Posts),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return nil
}

// WriteFile writes rows to path. The report is written to a temporary file
// in the same directory and renamed into place, so path either holds a
// complete report or is left untouched.
func WriteFile(path string, rows []Row) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: failed to create directory: %w", ErrWrite, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrWrite, err)
	}
	tmpName := tmp.Name()

	if err := WriteCSV(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	return nil
}

// ReadCSV parses a report written by WriteCSV.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("failed to read report: missing header")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	for i, name := range Header {
		if header[i] != name {
			return nil, fmt.Errorf("failed to read report: unexpected header %v", header)
		}
	}

	rows := []Row{}
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read report: %w", err)
		}

		date, err := postdate.Parse(record[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read report: %w", err)
		}
		score, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, fmt.Errorf("failed to read report: invalid score %q", record[1])
		}
		posts, err := strconv.Atoi(record[2])
		if err != nil {
			return nil, fmt.Errorf("failed to read report: invalid posts %q", record[2])
		}

		rows = append(rows, Row{Date: date, Score: score, Posts: posts})
	}

	return rows, nil
}

// ReadFile reads a report from disk.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}
