package sql

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-batch/pkg/jsonutil"
)

// Parameters is the bind set sent with a script. A JSON object becomes Named,
// a JSON array becomes Positional, and an absent or null value is empty.
type Parameters struct {
	Named      map[string]any
	Positional []any
}

// IsEmpty reports whether no parameters were supplied.
func (p Parameters) IsEmpty() bool {
	return len(p.Named) == 0 && len(p.Positional) == 0
}

// Values returns every parameter keyed by name. Positional parameters are
// keyed by their 1-based position ("1", "2", ...).
func (p Parameters) Values() map[string]any {
	out := make(map[string]any, len(p.Named)+len(p.Positional))
	for k, v := range p.Named {
		out[k] = v
	}
	for i, v := range p.Positional {
		out[strconv.Itoa(i+1)] = v
	}
	return out
}

func (p *Parameters) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*p = Parameters{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '{':
		var named map[string]any
		if err := json.Unmarshal(data, &named); err != nil {
			return fmt.Errorf("%w: invalid parameters: %v", apperrors.ErrInvalidInput, err)
		}
		p.Named = jsonutil.NormalizeMap(named)
	case '[':
		var positional []any
		if err := json.Unmarshal(data, &positional); err != nil {
			return fmt.Errorf("%w: invalid parameters: %v", apperrors.ErrInvalidInput, err)
		}
		p.Positional = jsonutil.NormalizeSlice(positional)
	default:
		return fmt.Errorf("%w: parameters must be an object or an array", apperrors.ErrInvalidInput)
	}
	return nil
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	switch {
	case len(p.Positional) > 0:
		return json.Marshal(p.Positional)
	case len(p.Named) > 0:
		return json.Marshal(p.Named)
	default:
		return []byte("null"), nil
	}
}
