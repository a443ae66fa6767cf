package sqlgen

// Params is an insertion-ordered set of column/value pairs. Generated column
// lists follow the order in which keys were first set, which a plain Go map
// cannot guarantee.
type Params struct {
	keys   []string
	values map[string]any
}

// NewParams returns an empty parameter set.
func NewParams() *Params {
	return &Params{values: make(map[string]any)}
}

// Set stores a value under key, appending the key to the column order on
// first use. Setting an existing key overwrites the value in place. Returns
// the receiver for chaining.
func (p *Params) Set(key string, value any) *Params {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Get returns the value stored under key and whether it is present.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.values[key]
	return v, ok
}

// Keys returns the column names in insertion order. The returned slice is a
// copy and may be modified by the caller.
func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Len returns the number of distinct keys.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

// IsEmpty reports whether the set holds no keys.
func (p *Params) IsEmpty() bool {
	return p.Len() == 0
}

// Merge returns a new set containing the receiver's pairs followed by
// other's. Keys present in both keep the receiver's position and take
// other's value. Neither input is modified.
func (p *Params) Merge(other *Params) *Params {
	merged := NewParams()
	if p != nil {
		for _, k := range p.keys {
			merged.Set(k, p.values[k])
		}
	}
	if other != nil {
		for _, k := range other.keys {
			merged.Set(k, other.values[k])
		}
	}
	return merged
}
