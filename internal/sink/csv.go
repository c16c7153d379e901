// Package sink persists settled outcomes and extracted documents.
package sink

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/codefetch/harvester/internal/harvest"
)

// Header columns written exactly once when the summary file is created.
var summaryHeader = []string{"Activation ID", "Secret Code", "Status Code"}

// CSVSink is the append-only durable record store. Rows are written in the
// order rounds settle them, one per identifier. Appends are serialized by a
// mutex and flushed per batch, so a crash can lose at most the batch being
// written and never corrupts earlier rows.
type CSVSink struct {
	padWidth int
	logger   *zap.Logger

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVSink opens path for append, writing the header only when the file
// did not previously exist. Failure to open is fatal to startup.
func NewCSVSink(path string, padWidth int, logger *zap.Logger) (*CSVSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	existing, err := fileHasData(path)
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open summary file %s: %w", path, err)
	}
	s := &CSVSink{
		padWidth: padWidth,
		logger:   logger,
		file:     file,
		writer:   csv.NewWriter(file),
	}
	if !existing {
		if err := s.writer.Write(summaryHeader); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write summary header: %w", err)
		}
		s.writer.Flush()
		if err := s.writer.Error(); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("flush summary header: %w", err)
		}
	}
	return s, nil
}

// Append writes one row per settled outcome and flushes the batch.
func (s *CSVSink) Append(ctx context.Context, outcomes []harvest.Outcome) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("append canceled: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, out := range outcomes {
		record := []string{
			out.ID.Padded(s.padWidth),
			out.SecretCode,
			strconv.Itoa(out.Status),
		}
		if err := s.writer.Write(record); err != nil {
			return fmt.Errorf("write summary row for %d: %w", out.ID, err)
		}
	}
	s.writer.Flush()
	if err := s.writer.Error(); err != nil {
		return fmt.Errorf("flush summary rows: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer.Flush()
	flushErr := s.writer.Error()
	closeErr := s.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush summary file: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close summary file: %w", closeErr)
	}
	return nil
}

// LoadSettledIDs reads the identifiers already recorded in an existing
// summary file so a restarted run can skip them. A missing file yields an
// empty set. Malformed rows are skipped.
func LoadSettledIDs(path string) (map[harvest.ID]struct{}, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[harvest.ID]struct{}{}, nil
		}
		return nil, fmt.Errorf("open summary file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	settled := make(map[harvest.ID]struct{})
	first := true
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if first {
			first = false
			continue
		}
		if len(record) == 0 {
			continue
		}
		id, err := strconv.Atoi(record[0])
		if err != nil {
			continue
		}
		settled[harvest.ID(id)] = struct{}{}
	}
	return settled, nil
}

func fileHasData(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat summary file %s: %w", path, err)
	}
	return info.Size() > 0, nil
}
