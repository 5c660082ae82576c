package heartrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawJSON(s string) json.RawMessage { return json.RawMessage(s) }

func TestExtract_DropsNullSamples(t *testing.T) {
	raw := `[{"2024-01-01": {"heartRateValues": [[1000,70],[61000,null],[121000,75]], "maxHeartRate": 80}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "2024-01-01", rec.DateOfMeasurement)
	assert.Equal(t, []float64{0, 2}, rec.Time)
	assert.Equal(t, []float64{70, 75}, rec.Value)
	assert.Equal(t, Metadata{MaxHeartRate: rawJSON("80")}, rec.Metadata)
}

func TestExtract_BaselineFromNullFirstSample(t *testing.T) {
	raw := `[{"d": {"heartRateValues": [[5000,null],[65000,60]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)

	assert.Equal(t, "d", rec.DateOfMeasurement)
	assert.Equal(t, []float64{1}, rec.Time)
	assert.Equal(t, []float64{60}, rec.Value)
}

func TestExtract_SerializedShape(t *testing.T) {
	raw := `[{"2024-01-01": {"heartRateValues": [[1000,70],[61000,null],[121000,75]], "maxHeartRate": 80}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"date_of_measurement": "2024-01-01",
		"time": [0, 2],
		"value": [70, 75],
		"metadata": {"maxHeartRate": 80, "minHeartRate": null, "restingHeartRate": null}
	}`, string(out))
}

func TestExtract_AllMetadata(t *testing.T) {
	raw := `[{"2023-06-30": {
		"heartRateValues": [[1688083200000, 58]],
		"maxHeartRate": 142, "minHeartRate": 48, "restingHeartRate": 54.5
	}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, Metadata{
		MaxHeartRate:     rawJSON("142"),
		MinHeartRate:     rawJSON("48"),
		RestingHeartRate: rawJSON("54.5"),
	}, rec.Metadata)
}

func TestExtract_NonNumericMetadataPassesThrough(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want Metadata
	}{
		{
			name: "string",
			doc:  `[{"d": {"heartRateValues": [[0, 1]], "restingHeartRate": "low"}}]`,
			want: Metadata{RestingHeartRate: rawJSON(`"low"`)},
		},
		{
			name: "bool",
			doc:  `[{"d": {"heartRateValues": [[0, 1]], "restingHeartRate": false, "maxHeartRate": true}}]`,
			want: Metadata{MaxHeartRate: rawJSON("true"), RestingHeartRate: rawJSON("false")},
		},
		{
			name: "escaped string",
			doc:  `[{"d": {"heartRateValues": [[0, 1]], "minHeartRate": "a \"b\""}}]`,
			want: Metadata{MinHeartRate: rawJSON(`"a \"b\""`)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Extract([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Metadata)

			out, err := json.Marshal(rec)
			require.NoError(t, err)
			assert.True(t, json.Valid(out))
		})
	}
}

func TestExtract_DuplicateKeysKeepLastValue(t *testing.T) {
	rec, err := Extract([]byte(`[{"d": {"heartRateValues": [[0, 1]], "heartRateValues": [[0, 9]], "maxHeartRate": 1, "maxHeartRate": 2}}]`))
	require.NoError(t, err)
	assert.Equal(t, []float64{9}, rec.Value)
	assert.Equal(t, rawJSON("2"), rec.Metadata.MaxHeartRate)

	rec, err = Extract([]byte(`[{"a": {"heartRateValues": [[0, 1]]}, "b": {}, "a": {"heartRateValues": [[0, 5]]}}]`))
	require.NoError(t, err)
	assert.Equal(t, "a", rec.DateOfMeasurement)
	assert.Equal(t, []float64{5}, rec.Value)
}

func TestExtract_NullMetadataIsAbsent(t *testing.T) {
	raw := `[{"x": {"heartRateValues": [[0, 1]], "maxHeartRate": null}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Nil(t, rec.Metadata.MaxHeartRate)
}

func TestExtract_DateLabelIsFirstKey(t *testing.T) {
	raw := `[{"not a date": {"heartRateValues": [[0, 1]]}, "2024-01-02": {"heartRateValues": [[0, 2]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "not a date", rec.DateOfMeasurement)
	assert.Equal(t, []float64{1}, rec.Value)
}

func TestExtract_OnlyFirstEntryIsRead(t *testing.T) {
	raw := `[{"a": {"heartRateValues": [[0, 1]]}}, {"b": {"heartRateValues": [[0, 2]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "a", rec.DateOfMeasurement)
}

func TestExtract_AllNullSamples(t *testing.T) {
	raw := `[{"d": {"heartRateValues": [[0,null],[60000,null]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, rec.Time)
	assert.Empty(t, rec.Value)

	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"time":[]`)
	assert.Contains(t, string(out), `"value":[]`)
}

func TestExtract_Rounding(t *testing.T) {
	raw := `[{"d": {"heartRateValues": [[0,60],[1000,61],[12600,62],[45000,63],[-30000,64]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.02, 0.21, 0.75, -0.5}, rec.Time)
}

func TestExtract_PreservesOrder(t *testing.T) {
	raw := `[{"d": {"heartRateValues": [[120000,70],[60000,71],[0,72]]}}]`

	rec, err := Extract([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, []float64{0, -1, -2}, rec.Time)
	assert.Equal(t, []float64{70, 71, 72}, rec.Value)
}

func TestExtract_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"invalid syntax", `[{"d": {"heartRateValues": [[0, 1]]}`},
		{"empty input", ``},
		{"empty top-level array", `[]`},
		{"top level object", `{"d": {"heartRateValues": [[0, 1]]}}`},
		{"top level string", `"hello"`},
		{"first element not object", `[[1, 2]]`},
		{"first element empty object", `[{}]`},
		{"date value not object", `[{"d": [1, 2]}]`},
		{"missing heartRateValues", `[{"d": {"maxHeartRate": 80}}]`},
		{"heartRateValues not array", `[{"d": {"heartRateValues": {"0": 1}}}]`},
		{"heartRateValues empty", `[{"d": {"heartRateValues": []}}]`},
		{"sample not array", `[{"d": {"heartRateValues": [5]}}]`},
		{"sample too short", `[{"d": {"heartRateValues": [[0]]}}]`},
		{"baseline not number", `[{"d": {"heartRateValues": [["x", null], [0, 1]]}}]`},
		{"timestamp not number", `[{"d": {"heartRateValues": [[0, 1], ["t", 2]]}}]`},
		{"value not number", `[{"d": {"heartRateValues": [[0, "fast"]]}}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Extract([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, rec)

			var me *MalformedExportError
			require.True(t, errors.As(err, &me), "expected *MalformedExportError, got %T", err)
			assert.True(t, IsMalformed(err))
			assert.True(t, strings.HasPrefix(err.Error(), "malformed heart rate export"))
		})
	}
}

func TestExtract_MalformedCarriesCause(t *testing.T) {
	_, err := Extract([]byte(`[{`))
	require.Error(t, err)

	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(err, &syntaxErr))
}

func TestExtract_Idempotent(t *testing.T) {
	raw := []byte(`[{"2024-01-01": {"heartRateValues": [[1000,70],[61000,null],[121000,75]], "minHeartRate": 50}}]`)

	first, err := Extract(raw)
	require.NoError(t, err)
	second, err := Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_RandomExports(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for n := 0; n < 200; n++ {
		count := 1 + rng.Intn(50)
		start := int64(1700000000000) + rng.Int63n(1000000)
		ts := start

		var pairs []string
		nonNull := 0
		firstNonNull := false
		for i := 0; i < count; i++ {
			ts += rng.Int63n(120000)
			if rng.Intn(3) == 0 {
				pairs = append(pairs, fmt.Sprintf("[%d,null]", ts))
				continue
			}
			if i == 0 {
				firstNonNull = true
			}
			nonNull++
			pairs = append(pairs, fmt.Sprintf("[%d,%d]", ts, 40+rng.Intn(140)))
		}
		raw := fmt.Sprintf(`[{"day": {"heartRateValues": [%s]}}]`, strings.Join(pairs, ","))

		rec, err := Extract([]byte(raw))
		require.NoError(t, err)
		require.Len(t, rec.Time, len(rec.Value))
		require.Len(t, rec.Value, nonNull)
		if firstNonNull {
			require.Equal(t, 0.0, rec.Time[0])
		}
		for i := 1; i < len(rec.Time); i++ {
			require.GreaterOrEqual(t, rec.Time[i], rec.Time[i-1])
		}
	}
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hr.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"d": {"heartRateValues": [[0, 65]]}}]`), 0o600))

	rec, err := ExtractFile(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{65}, rec.Value)
}

func TestExtractFile_MissingFileIsNotMalformed(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.False(t, IsMalformed(err))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
