// Package json reads transaction batches from JSON feeds.
package json

import (
	"encoding/json"
	"fmt"
	"io"

	"cafeload/internal/model"
)

// ReadBatch parses one batch of raw transactions from r.
//
// Accepted shapes:
//   - a root array of transaction objects
//   - a root object with a "transactions" array field (envelope pattern);
//     other envelope fields are skipped without decoding
//
// An empty input yields an empty batch, not an error.
func ReadBatch(r io.Reader) ([]model.RawTransaction, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	// Peek the first token to decide array vs envelope without buffering.
	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("json: read first token: %w", err)
	}

	d, ok := tok.(json.Delim)
	if !ok {
		return nil, fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch d {
	case '[':
		batch, err := decodeTransactionArray(dec)
		if err != nil {
			return nil, err
		}
		if end, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("json: read array end: %w", err)
		} else if end != json.Delim(']') {
			return nil, fmt.Errorf("json: expected array end ']', got %v", end)
		}
		return batch, nil

	case '{':
		return decodeEnvelope(dec)

	default:
		return nil, fmt.Errorf("json: unsupported root delimiter %q", d)
	}
}

// decodeTransactionArray streams elements of the current array (after '['
// has been consumed).
func decodeTransactionArray(dec *json.Decoder) ([]model.RawTransaction, error) {
	var batch []model.RawTransaction
	for dec.More() {
		var raw model.RawTransaction
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("json: decode transaction %d: %w", len(batch)+1, err)
		}
		batch = append(batch, raw)
	}
	return batch, nil
}

// decodeEnvelope walks a root object (after '{' has been consumed) looking
// for the "transactions" array. Other fields are consumed as raw messages
// and dropped.
func decodeEnvelope(dec *json.Decoder) ([]model.RawTransaction, error) {
	var batch []model.RawTransaction
	found := false

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read envelope key: %w", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("json: envelope key not a string (got %T)", keyTok)
		}

		if key != "transactions" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("json: skip envelope field %q: %w", key, err)
			}
			continue
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("json: read transactions value: %w", err)
		}
		if valTok != json.Delim('[') {
			return nil, fmt.Errorf("json: envelope field \"transactions\" is not an array (got %v)", valTok)
		}

		batch, err = decodeTransactionArray(dec)
		if err != nil {
			return nil, err
		}
		if end, err := dec.Token(); err != nil {
			return nil, fmt.Errorf("json: read transactions end: %w", err)
		} else if end != json.Delim(']') {
			return nil, fmt.Errorf("json: expected ']' after transactions, got %v", end)
		}
		found = true
	}

	if end, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("json: read envelope end: %w", err)
	} else if end != json.Delim('}') {
		return nil, fmt.Errorf("json: expected object end '}', got %v", end)
	}

	if !found {
		return nil, fmt.Errorf("json: envelope has no \"transactions\" array")
	}
	return batch, nil
}
