package backtest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yourusername/quantlink-tick-engine/pkg/market"
)

// maxLineSize 单行快照上限（完整九品种盘口远小于此值）
const maxLineSize = 4 << 20

// SnapshotReader reads one JSON snapshot per line; blank lines and lines
// starting with '#' are skipped
type SnapshotReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewSnapshotReader wraps r
func NewSnapshotReader(r io.Reader) *SnapshotReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	return &SnapshotReader{scanner: s}
}

// Next returns the next snapshot or io.EOF
func (r *SnapshotReader) Next() (market.Snapshot, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var snap market.Snapshot
		if err := json.Unmarshal([]byte(line), &snap); err != nil {
			return market.Snapshot{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return snap, nil
	}
	if err := r.scanner.Err(); err != nil {
		return market.Snapshot{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	return market.Snapshot{}, io.EOF
}

// Line returns the number of lines consumed so far
func (r *SnapshotReader) Line() int { return r.line }

// LoadSnapshots reads every snapshot from path; a directory is read as all
// of its *.jsonl files in lexical order
func LoadSnapshots(path string) ([]market.Snapshot, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.jsonl"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, fmt.Errorf("no *.jsonl files in %s", path)
		}
	}

	var out []market.Snapshot
	for _, f := range files {
		snaps, err := loadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		out = append(out, snaps...)
	}
	return out, nil
}

func loadFile(path string) ([]market.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []market.Snapshot
	r := NewSnapshotReader(f)
	for {
		snap, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
}
