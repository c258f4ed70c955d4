package data

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"wf-backtest/internal/model"
)

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// MissingColumnError reports a required column absent from the source.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing required column %q", e.Column)
}

// Load reads a bar series by file extension (.csv or .json) and validates it.
func Load(path string) (*model.Series, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path)
	case ".json":
		return LoadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported data file %q (want .csv or .json)", path)
	}
}

func LoadCSV(path string) (*model.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := DecodeCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func LoadJSON(path string) (*model.Series, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeCSV parses a headered CSV. Column names are case-insensitive.
func DecodeCSV(r io.Reader) (*model.Series, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, model.ErrEmptySeries
		}
		return nil, err
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, &MissingColumnError{Column: c}
		}
	}
	_, hasATR := cols["atr"]

	var rows []record
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rec := record{line: line, values: map[string]string{}}
		for name, i := range cols {
			if i < len(fields) {
				rec.values[name] = strings.TrimSpace(fields[i])
			}
		}
		rows = append(rows, rec)
	}
	return build(rows, hasATR)
}

// DecodeJSON accepts either a bare array of bar objects or {"data": [...]}.
func DecodeJSON(raw []byte) (*model.Series, error) {
	var objs []map[string]json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapper struct {
			Data []map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, err
		}
		objs = wrapper.Data
	} else if err := json.Unmarshal(trimmed, &objs); err != nil {
		return nil, err
	}
	if len(objs) == 0 {
		return nil, model.ErrEmptySeries
	}

	hasATR := true
	rows := make([]record, 0, len(objs))
	for i, o := range objs {
		rec := record{line: i, values: map[string]string{}}
		for k, v := range o {
			s := string(v)
			var str string
			if err := json.Unmarshal(v, &str); err == nil {
				s = str
			}
			rec.values[strings.ToLower(k)] = s
		}
		for _, c := range requiredColumns {
			if _, ok := rec.values[c]; !ok {
				return nil, &MissingColumnError{Column: c}
			}
		}
		if _, ok := rec.values["atr"]; !ok {
			hasATR = false
		}
		rows = append(rows, rec)
	}
	return build(rows, hasATR)
}

type record struct {
	line   int
	values map[string]string
}

func (r record) float(name string) (float64, error) {
	v, err := strconv.ParseFloat(r.values[name], 64)
	if err != nil {
		return 0, fmt.Errorf("row %d: %s: %w", r.line, name, err)
	}
	return v, nil
}

// build converts records into a validated series. Exact duplicate timestamps keep
// the first bar; any backwards step is an error.
func build(rows []record, hasATR bool) (*model.Series, error) {
	if len(rows) == 0 {
		return nil, model.ErrEmptySeries
	}
	s := &model.Series{HasATR: hasATR, Bars: make([]model.Bar, 0, len(rows))}
	for _, r := range rows {
		ts, err := ParseTimestamp(r.values["timestamp"])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r.line, err)
		}
		var b model.Bar
		b.Time = ts
		fields := []struct {
			name string
			dst  *float64
		}{{"open", &b.Open}, {"high", &b.High}, {"low", &b.Low}, {"close", &b.Close}, {"volume", &b.Volume}}
		if hasATR {
			fields = append(fields, struct {
				name string
				dst  *float64
			}{"atr", &b.ATR})
		}
		for _, f := range fields {
			v, err := r.float(f.name)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}

		if n := len(s.Bars); n > 0 {
			prev := s.Bars[n-1].Time
			if ts.Equal(prev) {
				continue
			}
			if ts.Before(prev) {
				return nil, &model.ValidationError{Index: n, Field: "timestamp", Reason: model.ErrUnsorted}
			}
		}
		s.Bars = append(s.Bars, b)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp accepts RFC3339-like layouts (UTC when no offset is given) and unix
// epochs in seconds or milliseconds.
func ParseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n > 1e11 || n < -1e11 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", v)
}
