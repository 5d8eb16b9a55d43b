package claims

// Map is a free-form payload: every entry is a claim.
type Map map[string]any

// TokenClaims returns the map itself.
func (m Map) TokenClaims() map[string]any {
	return m
}

// ApplyClaims decodes every claim of set into the map as a generic JSON value.
func (m *Map) ApplyClaims(set Set) error {
	if *m == nil {
		*m = make(Map, len(set))
	}
	for name := range set {
		var v any
		if _, err := set.Decode(name, &v); err != nil {
			return err
		}
		(*m)[name] = v
	}
	return nil
}
