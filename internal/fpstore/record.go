package fpstore

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const (
	formatVersion = 1
	headerPrefix  = "# gifwright fpstore v"
	fieldCount    = 5
)

var header = headerPrefix + strconv.Itoa(formatVersion)

// Fingerprint is a cheap proxy for file identity: size plus modification time.
type Fingerprint struct {
	Size    int64
	ModTime int64 // Unix nanoseconds
}

// FingerprintOf derives a fingerprint from file metadata.
func FingerprintOf(info os.FileInfo) Fingerprint {
	if info == nil {
		return Fingerprint{}
	}
	return Fingerprint{Size: info.Size(), ModTime: info.ModTime().UnixNano()}
}

// Stat fingerprints the file at path with a single metadata call.
func Stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	if info.IsDir() {
		return Fingerprint{}, fmt.Errorf("fingerprint %s: is a directory", path)
	}
	return FingerprintOf(info), nil
}

// Record is one persisted line.
type Record struct {
	Key         string
	Fingerprint Fingerprint
	Timestamp   int64 // Unix seconds
	Payload     string
}

var errMalformed = errors.New("malformed record")

// encodeRecord renders a record as a complete, newline-terminated line.
func encodeRecord(r Record) string {
	var b strings.Builder
	b.Grow(len(r.Key) + len(r.Payload) + 48)
	b.WriteString(escapeKey(r.Key))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.Fingerprint.Size, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.Fingerprint.ModTime, 10))
	b.WriteByte('|')
	b.WriteString(strconv.FormatInt(r.Timestamp, 10))
	b.WriteByte('|')
	b.WriteString(escapeField(r.Payload))
	b.WriteByte('\n')
	return b.String()
}

// decodeRecord parses one line (without its trailing newline).
func decodeRecord(line string) (Record, error) {
	fields, err := splitFields(line)
	if err != nil {
		return Record{}, err
	}
	if len(fields) != fieldCount {
		return Record{}, fmt.Errorf("%w: expected %d fields, got %d", errMalformed, fieldCount, len(fields))
	}
	if fields[0] == "" {
		return Record{}, fmt.Errorf("%w: empty key", errMalformed)
	}
	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size < 0 {
		return Record{}, fmt.Errorf("%w: bad size %q", errMalformed, fields[1])
	}
	mtime, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad mtime %q", errMalformed, fields[2])
	}
	ts, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: bad timestamp %q", errMalformed, fields[3])
	}
	return Record{
		Key:         fields[0],
		Fingerprint: Fingerprint{Size: size, ModTime: mtime},
		Timestamp:   ts,
		Payload:     fields[4],
	}, nil
}

// escapeKey escapes a key field. A leading '#' is escaped as well, since
// a line starting with '#' is read back as a comment.
func escapeKey(key string) string {
	if strings.HasPrefix(key, "#") {
		return `\#` + escapeField(key[1:])
	}
	return escapeField(key)
}

func escapeField(value string) string {
	if !strings.ContainsAny(value, "\\|\n\r") {
		return value
	}
	var b strings.Builder
	b.Grow(len(value) + 8)
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case '|':
			b.WriteString(`\|`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// splitFields splits on unescaped pipes and unescapes each field.
func splitFields(line string) ([]string, error) {
	fields := make([]string, 0, fieldCount)
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch c {
		case '\\':
			if i+1 >= len(line) {
				return nil, fmt.Errorf("%w: dangling escape", errMalformed)
			}
			i++
			switch line[i] {
			case '\\':
				cur.WriteByte('\\')
			case '|':
				cur.WriteByte('|')
			case '#':
				cur.WriteByte('#')
			case 'n':
				cur.WriteByte('\n')
			case 'r':
				cur.WriteByte('\r')
			default:
				return nil, fmt.Errorf("%w: unknown escape \\%c", errMalformed, line[i])
			}
		case '|':
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	fields = append(fields, cur.String())
	return fields, nil
}

// parseHeader reports the format version declared by a header line.
func parseHeader(line string) (int, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, headerPrefix) {
		return 0, false
	}
	version, err := strconv.Atoi(strings.TrimPrefix(line, headerPrefix))
	if err != nil {
		return 0, false
	}
	return version, true
}
