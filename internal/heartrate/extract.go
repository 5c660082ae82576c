// Package heartrate turns vendor heart-rate JSON exports into normalized
// time/value series.
//
// An export is an array whose first element is an object keyed by a single
// date label. The value under that label holds the samples:
//
//	[{"2024-01-01": {
//	    "heartRateValues": [[1704067200000, 70], [1704067260000, null]],
//	    "maxHeartRate": 80, "minHeartRate": 55, "restingHeartRate": 60
//	}}]
package heartrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/buger/jsonparser"
)

const millisPerMinute = 60000.0

// Record is the normalized form of one export document. It is computed once
// at upload time and stored verbatim.
type Record struct {
	DateOfMeasurement string    `json:"date_of_measurement"`
	Time              []float64 `json:"time"`
	Value             []float64 `json:"value"`
	Metadata          Metadata  `json:"metadata"`
}

// Metadata carries the optional daily summary values of an export. Values
// are copied from the export as-is; a nil field is serialized as null.
type Metadata struct {
	MaxHeartRate     json.RawMessage `json:"maxHeartRate"`
	MinHeartRate     json.RawMessage `json:"minHeartRate"`
	RestingHeartRate json.RawMessage `json:"restingHeartRate"`
}

// MalformedExportError reports that a document does not have the expected
// export shape.
type MalformedExportError struct {
	Reason string
	Err    error
}

func (e *MalformedExportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed heart rate export: %s: %v", e.Reason, e.Err)
	}
	return "malformed heart rate export: " + e.Reason
}

func (e *MalformedExportError) Unwrap() error { return e.Err }

// IsMalformed reports whether err is, or wraps, a *MalformedExportError.
func IsMalformed(err error) bool {
	var me *MalformedExportError
	return errors.As(err, &me)
}

func malformed(reason string, err error) error {
	return &MalformedExportError{Reason: reason, Err: err}
}

// errFirstKey stops object iteration after the first key.
var errFirstKey = errors.New("first key found")

// ExtractFile reads an export from disk and extracts it. Read failures are
// returned as ordinary wrapped errors, never as *MalformedExportError.
func ExtractFile(path string) (*Record, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	return Extract(raw)
}

// Extract parses a raw export and returns its normalized record.
//
// Relative times are minutes since the timestamp of the first raw sample,
// whether or not that sample carries a value. Samples with a null value are
// dropped. Times are rounded to two decimals half-to-even on the exact
// float64 value, which is what strconv.FormatFloat does.
//
// The date label is the first key of the first element. When an object
// repeats a key, the last occurrence supplies the value. Summary values are
// passed through whatever their JSON type.
//
// Extract is all-or-nothing: on any structural problem it returns a
// *MalformedExportError and no record.
func Extract(raw []byte) (*Record, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, malformed("invalid JSON", err)
	}

	_, topType, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, malformed("read document", err)
	}
	if topType != jsonparser.Array {
		return nil, malformed(fmt.Sprintf("top level is %s, want array", topType), nil)
	}

	entry, entryType, _, err := jsonparser.Get(raw, "[0]")
	if err != nil {
		return nil, malformed("top-level array is empty", err)
	}
	if entryType != jsonparser.Object {
		return nil, malformed(fmt.Sprintf("first element is %s, want object", entryType), nil)
	}

	dateLabel, err := firstKey(entry)
	if err != nil {
		return nil, err
	}
	block, blockType, _, err := lastValue(entry, dateLabel)
	if err != nil {
		return nil, err
	}
	if blockType != jsonparser.Object {
		return nil, malformed(fmt.Sprintf("value under %q is %s, want object", dateLabel, blockType), nil)
	}

	samples, samplesType, found, err := lastValue(block, "heartRateValues")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, malformed("missing heartRateValues", nil)
	}
	if samplesType != jsonparser.Array {
		return nil, malformed(fmt.Sprintf("heartRateValues is %s, want array", samplesType), nil)
	}

	times, values, err := extractSamples(samples)
	if err != nil {
		return nil, err
	}

	meta, err := extractMetadata(block)
	if err != nil {
		return nil, err
	}

	return &Record{
		DateOfMeasurement: dateLabel,
		Time:              times,
		Value:             values,
		Metadata:          meta,
	}, nil
}

// firstKey returns the first key of obj in document order.
func firstKey(obj []byte) (string, error) {
	var (
		key   string
		found bool
	)
	err := jsonparser.ObjectEach(obj, func(k, _ []byte, _ jsonparser.ValueType, _ int) error {
		key, found = decodeKey(k), true
		return errFirstKey
	})
	if err != nil && !errors.Is(err, errFirstKey) {
		return "", malformed("read first element", err)
	}
	if !found {
		return "", malformed("first element has no keys", nil)
	}
	return key, nil
}

// lastValue returns the value of the last occurrence of key in obj.
func lastValue(obj []byte, key string) ([]byte, jsonparser.ValueType, bool, error) {
	var (
		value []byte
		vt    jsonparser.ValueType
		found bool
	)
	err := jsonparser.ObjectEach(obj, func(k, v []byte, t jsonparser.ValueType, _ int) error {
		if decodeKey(k) == key {
			value, vt, found = v, t, true
		}
		return nil
	})
	if err != nil {
		return nil, 0, false, malformed(fmt.Sprintf("read object holding %q", key), err)
	}
	return value, vt, found, nil
}

func decodeKey(k []byte) string {
	s, err := jsonparser.ParseString(k)
	if err != nil {
		return string(k)
	}
	return s
}

func extractSamples(samples []byte) ([]float64, []float64, error) {
	var (
		times    = make([]float64, 0)
		values   = make([]float64, 0)
		baseline float64
		index    int
		firstErr error
	)

	_, err := jsonparser.ArrayEach(samples, func(sample []byte, st jsonparser.ValueType, _ int, iterErr error) {
		i := index
		index++
		if firstErr != nil {
			return
		}
		if iterErr != nil {
			firstErr = malformed(fmt.Sprintf("sample %d", i), iterErr)
			return
		}
		if st != jsonparser.Array {
			firstErr = malformed(fmt.Sprintf("sample %d is %s, want array", i, st), nil)
			return
		}

		ts, tsType, _, err := jsonparser.Get(sample, "[0]")
		if err != nil {
			firstErr = malformed(fmt.Sprintf("sample %d has no timestamp", i), err)
			return
		}
		v, vType, _, err := jsonparser.Get(sample, "[1]")
		if err != nil {
			firstErr = malformed(fmt.Sprintf("sample %d has no value", i), err)
			return
		}

		if i == 0 {
			b, err := parseNumber(ts, tsType)
			if err != nil {
				firstErr = malformed("sample 0 timestamp", err)
				return
			}
			baseline = b
		}

		if vType == jsonparser.Null {
			return
		}

		stamp, err := parseNumber(ts, tsType)
		if err != nil {
			firstErr = malformed(fmt.Sprintf("sample %d timestamp", i), err)
			return
		}
		bpm, err := parseNumber(v, vType)
		if err != nil {
			firstErr = malformed(fmt.Sprintf("sample %d value", i), err)
			return
		}

		times = append(times, roundMinutes((stamp-baseline)/millisPerMinute))
		values = append(values, bpm)
	})
	if firstErr != nil {
		return nil, nil, firstErr
	}
	if err != nil {
		return nil, nil, malformed("read heartRateValues", err)
	}
	if index == 0 {
		return nil, nil, malformed("heartRateValues is empty", nil)
	}
	return times, values, nil
}

func extractMetadata(block []byte) (Metadata, error) {
	var meta Metadata
	fields := []struct {
		key string
		dst *json.RawMessage
	}{
		{"maxHeartRate", &meta.MaxHeartRate},
		{"minHeartRate", &meta.MinHeartRate},
		{"restingHeartRate", &meta.RestingHeartRate},
	}
	for _, f := range fields {
		v, vt, found, err := lastValue(block, f.key)
		if err != nil {
			return Metadata{}, err
		}
		if !found || vt == jsonparser.Null {
			continue
		}
		*f.dst = rawValue(v, vt)
	}
	return meta, nil
}

// rawValue re-encodes a value returned by jsonparser, which strips the quotes
// from strings but leaves their escapes intact.
func rawValue(v []byte, vt jsonparser.ValueType) json.RawMessage {
	if vt == jsonparser.String {
		out := make([]byte, 0, len(v)+2)
		out = append(out, '"')
		out = append(out, v...)
		return append(out, '"')
	}
	return append(json.RawMessage(nil), v...)
}

func parseNumber(b []byte, vt jsonparser.ValueType) (float64, error) {
	if vt != jsonparser.Number {
		return 0, fmt.Errorf("got %s, want number", vt)
	}
	return jsonparser.ParseFloat(b)
}

// roundMinutes rounds to two decimal places.
func roundMinutes(m float64) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(m, 'f', 2, 64), 64)
	if err != nil {
		return m
	}
	return r
}
