package store

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vyrodovalexey/avauthz/internal/authz"
	"github.com/vyrodovalexey/avauthz/internal/observability"
)

// FileStore loads policy rows from a CSV-style policy file. Each line
// is one row: the tag followed by its fields, comma-separated. Blank
// lines and lines starting with '#' are ignored.
type FileStore struct {
	path   string
	logger observability.Logger
}

// FileStoreOption is a functional option for the file store.
type FileStoreOption func(*FileStore)

// WithFileStoreLogger sets the logger.
func WithFileStoreLogger(logger observability.Logger) FileStoreOption {
	return func(s *FileStore) {
		s.logger = logger
	}
}

// NewFileStore creates a file-backed policy store.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Path returns the policy file path.
func (s *FileStore) Path() string {
	return s.path
}

// LoadAll reads every row from the policy file in order.
func (s *FileStore) LoadAll(ctx context.Context) ([]authz.Row, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open policy file: %w", err)
	}
	defer f.Close()

	var rows []authz.Row

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := splitRow(line)
		if len(fields) < 2 {
			s.logger.Warn("malformed policy line",
				observability.Int("line", lineNo),
				observability.String("text", line),
			)
			continue
		}

		rows = append(rows, authz.Row{Tag: fields[0], Fields: fields[1:]})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	return rows, nil
}

// splitRow splits a policy line on commas, honoring double-quoted
// strings and parenthesized groups so predicate expressions such as
// patternMatch(r2.obj, p2.obj) survive as a single field. Quotes are
// kept; they are part of the predicate source.
func splitRow(line string) []string {
	var fields []string
	var buf strings.Builder

	depth := 0
	inQuote := false
	escaped := false

	for _, r := range line {
		switch {
		case escaped:
			buf.WriteRune(r)
			escaped = false
		case inQuote && r == '\\':
			buf.WriteRune(r)
			escaped = true
		case r == '"':
			buf.WriteRune(r)
			inQuote = !inQuote
		case inQuote:
			buf.WriteRune(r)
		case r == '(':
			buf.WriteRune(r)
			depth++
		case r == ')':
			buf.WriteRune(r)
			if depth > 0 {
				depth--
			}
		case r == ',' && depth == 0:
			fields = append(fields, strings.TrimSpace(buf.String()))
			buf.Reset()
		default:
			buf.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(buf.String()))

	return fields
}

// Ensure FileStore implements the store contract.
var _ authz.Store = (*FileStore)(nil)
