package types

// Selector is the canonical element query: match against identifier (when
// ByLabel is false) or label (when true), with glob wildcards, optionally
// narrowed to a specific element type.
type Selector struct {
	Value     string  `json:"selector"`
	ByLabel   bool    `json:"by_label"`
	ElemType  *string `json:"element_type,omitempty"`
}

// Matches reports whether e satisfies the selector: the glob-matched field
// (identifier or label, per ByLabel) and, if ElemType is set, an exact type
// match.
func (s Selector) Matches(e *Element) bool {
	if e == nil {
		return false
	}
	if !e.MatchesType(s.ElemType) {
		return false
	}
	if s.ByLabel {
		return e.MatchesLabel(s.Value)
	}
	return e.MatchesIdentifier(s.Value)
}

// FindFirst returns the first element in the flattened tree that matches s,
// or nil. Used by the default (tree-dump-based) search implementations.
func FindFirst(root *Element, s Selector) *Element {
	for _, e := range Flatten(root) {
		if s.Matches(e) {
			return e
		}
	}
	return nil
}

// ListNamed returns every element in the flattened tree that carries an
// identifier or a label, the default list_elements behavior.
func ListNamed(root *Element) []*Element {
	var out []*Element
	for _, e := range Flatten(root) {
		if e.Identifier != nil || e.Label != nil {
			out = append(out, e)
		}
	}
	return out
}
