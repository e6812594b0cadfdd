package sql

import (
	"fmt"
	"sort"

	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a parameter value that libinjection flagged.
type InjectionCheckResult struct {
	ParamName   string
	ParamValue  any
	Fingerprint string // libinjection fingerprint, e.g. "s&1c"
}

// CheckParameterForInjection runs libinjection over a parameter value.
// Strings are inspected directly; arrays and objects are walked and their
// string members reported as name[i] or name.key. The first hit wins.
//
//	CheckParameterForInjection("search", "'; DROP TABLE users--")
//	// &InjectionCheckResult{ParamName: "search", Fingerprint: <non-empty>}
func CheckParameterForInjection(paramName string, value any) *InjectionCheckResult {
	switch v := value.(type) {
	case string:
		if isSQLi, fingerprint := libinjection.IsSQLi(v); isSQLi {
			return &InjectionCheckResult{
				ParamName:   paramName,
				ParamValue:  v,
				Fingerprint: string(fingerprint),
			}
		}
	case []any:
		for i, item := range v {
			if r := CheckParameterForInjection(fmt.Sprintf("%s[%d]", paramName, i), item); r != nil {
				return r
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if r := CheckParameterForInjection(paramName+"."+k, v[k]); r != nil {
				return r
			}
		}
	}
	return nil
}

// CheckParameters checks every request parameter and returns the flagged ones
// ordered by name. Positional parameters are named by position.
func CheckParameters(params Parameters) []*InjectionCheckResult {
	values := params.Values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var results []*InjectionCheckResult
	for _, name := range names {
		if result := CheckParameterForInjection(name, values[name]); result != nil {
			results = append(results, result)
		}
	}
	return results
}
