package geoclaw

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const keySep = "=:"

// DataFile is a parsed Clawpack data file. Each assignment line has the form
// "<values> =: <key>"; everything else (banner, blank lines, bare value lines)
// is kept verbatim so the file round trips.
type DataFile struct {
	lines []dataLine
}

type dataLine struct {
	raw   string
	key   string
	value string
}

// ParseDataFile reads a Clawpack data file.
func ParseDataFile(r io.Reader) (*DataFile, error) {
	df := &DataFile{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		raw := sc.Text()
		line := dataLine{raw: raw}
		if !strings.HasPrefix(strings.TrimSpace(raw), "#") {
			if value, key, ok := strings.Cut(raw, keySep); ok {
				line.key = strings.TrimSpace(key)
				line.value = strings.TrimSpace(value)
			}
		}
		df.lines = append(df.lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read data file: %w", err)
	}
	return df, nil
}

// Get returns the raw value string for key.
func (df *DataFile) Get(key string) (string, bool) {
	for _, l := range df.lines {
		if l.key == key {
			return l.value, true
		}
	}
	return "", false
}

// Set replaces the value of key, appending a new assignment if the key is
// absent.
func (df *DataFile) Set(key string, values ...any) {
	value := formatValues(values)
	for i, l := range df.lines {
		if l.key == key {
			df.lines[i] = assignment(key, value)
			return
		}
	}
	df.lines = append(df.lines, assignment(key, value))
}

// WriteTo writes the file.
func (df *DataFile) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	for _, l := range df.lines {
		buf.WriteString(l.raw)
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

func assignment(key, value string) dataLine {
	return dataLine{
		raw:   fmt.Sprintf("%-20s %s %s", value, keySep, key),
		key:   key,
		value: value,
	}
}

func formatValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = formatValue(v)
	}
	return strings.Join(parts, " ")
}

func formatValue(v any) string {
	switch v := v.(type) {
	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case int:
		return strconv.Itoa(v)
	case bool:
		if v {
			return "True"
		}
		return "False"
	case string:
		return "'" + v + "'"
	default:
		return fmt.Sprint(v)
	}
}
