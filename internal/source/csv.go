// Package source reads the input identifier list.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/codefetch/harvester/internal/harvest"
)

// ReadIDs loads the integer identifiers found in the named column of a CSV
// file, preserving input order and dropping duplicates. Rows whose value is
// missing or non-numeric are skipped silently; an unreadable file or a
// header without the column aborts startup.
func ReadIDs(path, column string) ([]harvest.ID, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read input header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == column {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("input file %s has no %q column", path, column)
	}

	var ids []harvest.ID
	seen := make(map[harvest.ID]struct{})
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			continue
		}
		if col >= len(record) {
			continue
		}
		value, err := strconv.Atoi(strings.TrimSpace(record[col]))
		if err != nil {
			continue
		}
		id := harvest.ID(value)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
