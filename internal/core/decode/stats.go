package decode

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mohammed-shakir/meteo-query/internal/core/model"
)

// statsKeys are the envelope keys the stats object may be nested under.
var statsKeys = []string{"stats", "user statistics", "user_statistics"}

// AccountStats decodes the account statistics record. JSON is expected; a
// single-row delimited table with a username column is accepted as well.
func AccountStats(payload []byte) (*model.AccountStats, error) {
	body := bytes.TrimSpace(payload)
	if len(body) == 0 {
		return nil, model.Decodef("empty account statistics payload")
	}
	if body[0] == '{' {
		return statsFromJSON(body)
	}
	return statsFromTable(body)
}

func statsFromJSON(body []byte) (*model.AccountStats, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(body, &top); err != nil {
		return nil, fmt.Errorf("%w: account statistics json: %v", model.ErrDecode, err)
	}

	inner := body
	for _, k := range statsKeys {
		if raw, ok := top[k]; ok {
			inner = raw
			break
		}
	}

	var fields map[string]any
	if err := json.Unmarshal(inner, &fields); err != nil {
		return nil, fmt.Errorf("%w: account statistics object: %v", model.ErrDecode, err)
	}
	user, _ := fields["username"].(string)
	if user == "" {
		return nil, model.Decodef("account statistics without username")
	}
	delete(fields, "username")
	return &model.AccountStats{Username: user, Fields: fields}, nil
}

func statsFromTable(body []byte) (*model.AccountStats, error) {
	f, err := Delimited(body)
	if err != nil {
		return nil, err
	}
	if f.Height() != 1 {
		return nil, model.Decodef("account statistics table has %d rows, want 1", f.Height())
	}
	out := &model.AccountStats{Fields: make(map[string]any, f.Width())}
	for _, c := range f.Columns() {
		if c.Name == "username" {
			out.Username = c.Str(0)
			continue
		}
		if c.IsNull(0) {
			out.Fields[c.Name] = nil
			continue
		}
		if v, ok := c.Float(0); ok {
			out.Fields[c.Name] = v
			continue
		}
		out.Fields[c.Name] = c.Str(0)
	}
	if out.Username == "" {
		return nil, model.Decodef("account statistics without username")
	}
	return out, nil
}
