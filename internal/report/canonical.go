package report

import (
	"bytes"
	"encoding/json"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical JSON form of a report: the one
// byte sequence the determinism contract is stated over. Parsing a
// canonical report and re-marshaling it yields identical bytes.
//
// Properties:
//  1. Field order is the struct declaration order (fixed at compile time);
//     metric names, the only map keys, are emitted in sorted order by
//     encoding/json.
//  2. No HTML escaping (< > & appear literally).
//  3. Log messages and metric names are NFC normalized at the
//     serialization boundary, so visually identical log messages from
//     different sources cannot produce different bytes. Other string
//     fields (delivered bytes included) are emitted unchanged.
func MarshalCanonical(r *Report) ([]byte, error) {
	normalized := *r
	normalized.Logs = make([]LogEntry, len(r.Logs))
	for i, e := range r.Logs {
		e.Message = norm.NFC.String(e.Message)
		normalized.Logs[i] = e
	}
	if r.Metrics != nil {
		normalized.Metrics = make(map[string][]MetricPoint, len(r.Metrics))
		for name, series := range r.Metrics {
			normalized.Metrics[norm.NFC.String(name)] = series
		}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(&normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline, remove it.
	out := buf.Bytes()
	if len(out) > 0 && out[len(out)-1] == '\n' {
		out = out[:len(out)-1]
	}
	return out, nil
}

// UnmarshalReport parses a serialized report.
func UnmarshalReport(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
