package fpstore

import (
	"fmt"
	"os"
	"strings"

	"gifwright/internal/services"
)

// CorruptionError describes why a store failed structural validation.
type CorruptionError struct {
	Path          string
	MissingHeader bool
	Version       int
	Lines         []int // 1-based line numbers of malformed records
}

func (e *CorruptionError) Error() string {
	var parts []string
	if e.MissingHeader {
		parts = append(parts, "missing header")
	}
	if e.Version != 0 && e.Version != formatVersion {
		parts = append(parts, fmt.Sprintf("unsupported version %d", e.Version))
	}
	if n := len(e.Lines); n > 0 {
		preview := e.Lines
		if n > 5 {
			preview = preview[:5]
		}
		parts = append(parts, fmt.Sprintf("%d malformed record(s) at lines %v", n, preview))
	}
	return fmt.Sprintf("fpstore %s: %s", e.Path, strings.Join(parts, ", "))
}

func (e *CorruptionError) Unwrap() error { return services.ErrStoreCorruption }

type scanResult struct {
	headerOK  bool
	version   int
	records   []Record
	malformed []int
	bytes     int64
}

func (s scanResult) corruption(path string) error {
	if s.headerOK && len(s.malformed) == 0 {
		return nil
	}
	return &CorruptionError{
		Path:          path,
		MissingHeader: s.version == 0 && !s.headerOK,
		Version:       s.version,
		Lines:         s.malformed,
	}
}

func scanFile(path string) (scanResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return scanResult{}, err
	}
	return scanBytes(data), nil
}

func scanBytes(data []byte) scanResult {
	res := scanResult{bytes: int64(len(data))}
	text := string(data)
	lineNo := 0
	for len(text) > 0 {
		lineNo++
		idx := strings.IndexByte(text, '\n')
		var line string
		terminated := idx >= 0
		if terminated {
			line = text[:idx]
			text = text[idx+1:]
		} else {
			line = text
			text = ""
		}
		line = strings.TrimSuffix(line, "\r")

		if lineNo == 1 {
			if version, ok := parseHeader(line); ok {
				res.version = version
				res.headerOK = version == formatVersion
				continue
			}
		}
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// An unterminated final line is an interrupted append.
		if !terminated {
			res.malformed = append(res.malformed, lineNo)
			continue
		}
		rec, err := decodeRecord(line)
		if err != nil {
			res.malformed = append(res.malformed, lineNo)
			continue
		}
		res.records = append(res.records, rec)
	}
	return res
}
