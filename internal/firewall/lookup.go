package firewall

import "errors"

// LookupStatus is the tri-state outcome of a name lookup.
type LookupStatus int

const (
	NotFound LookupStatus = iota
	Found
	LookupError
)

func (s LookupStatus) String() string {
	switch s {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "error"
	}
}

// LookupResult carries the matched rule when Status is Found and the store
// failure when Status is LookupError. The caller must Release the result.
type LookupResult struct {
	Status LookupStatus
	Rule   StoredRule
	Code   int64
	Err    error
}

// Release drops the stored rule reference, if any.
func (r *LookupResult) Release() {
	if r.Rule != nil {
		r.Rule.Release()
		r.Rule = nil
	}
}

func lookup(coll Collection, name string) LookupResult {
	rule, err := coll.Lookup(name)
	switch {
	case err == nil && rule != nil:
		return LookupResult{Status: Found, Rule: rule}
	case err == nil, errors.Is(err, ErrRuleNotFound):
		if rule != nil {
			rule.Release()
		}
		return LookupResult{Status: NotFound}
	default:
		if rule != nil {
			rule.Release()
		}
		return LookupResult{Status: LookupError, Code: NativeCode(err), Err: err}
	}
}
