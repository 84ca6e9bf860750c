package web

import (
	"encoding/json"
	"net/http"

	"github.com/buger/jsonparser"
	"github.com/nyaruka/gocommon/jsonx"
	"github.com/nyaruka/partition"
	"github.com/pkg/errors"
)

type errorResponse struct {
	Error string `json:"error"`
}

type statusResponse struct {
	Version  string           `json:"version"`
	Problems []string         `json:"problems"`
	Stats    *partition.Stats `json:"stats"`
}

func writeJSON(w http.ResponseWriter, statusCode int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(jsonx.MustMarshal(response))
}

// parses a JSON object into a record, keeping the order of its keys
func readRecord(data []byte) (partition.Record, error) {
	rec := make(partition.Record, 0, 8)

	err := jsonparser.ObjectEach(data, func(key []byte, value []byte, dataType jsonparser.ValueType, offset int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return err
		}

		v, err := readValue(value, dataType)
		if err != nil {
			return errors.Wrapf(err, "invalid value for %s", name)
		}

		rec = rec.With(name, v)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "request body must be a JSON object")
	}
	return rec, nil
}

// reads the object at the given key of a JSON document as a record, or an empty record if it's not there
func readRecordAt(data []byte, key string) (partition.Record, error) {
	value, dataType, _, err := jsonparser.Get(data, key)
	if dataType == jsonparser.NotExist {
		return partition.Record{}, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", key)
	}
	if dataType != jsonparser.Object {
		return nil, errors.Errorf("%s must be a JSON object", key)
	}

	rec, err := readRecord(value)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", key)
	}
	return rec, nil
}

// converts a JSON value to something the database driver can bind. Nested objects and arrays are kept as JSON
// text for json/jsonb columns.
func readValue(value []byte, dataType jsonparser.ValueType) (any, error) {
	switch dataType {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		if i, err := jsonparser.ParseInt(value); err == nil {
			return i, nil
		}
		return jsonparser.ParseFloat(value)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Object, jsonparser.Array:
		return string(value), nil
	}
	return nil, errors.Errorf("unsupported JSON type %s", dataType)
}

// converts records to ordered JSON objects
type recordJSON partition.Record

func (r recordJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte(`{}`), nil
	}

	buf := make([]byte, 0, 128)
	buf = append(buf, '{')
	for i, col := range r {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(col.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(col.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		buf = append(buf, val...)
	}
	return append(buf, '}'), nil
}
