package loader

import "strings"

// Scheme identifies one of the URI prefixes the loader understands.
type Scheme int

const (
	SchemeIPLD Scheme = iota + 1
	SchemeDwebIPLD
	SchemeIPFS
	SchemeDwebIPFS
)

type strategy int

const (
	// strategyLinkedData parses a CID and fetches a structured block.
	strategyLinkedData strategy = iota + 1
	// strategyBytes fetches flat bytes by store path and parses them as JSON.
	strategyBytes
)

type schemeEntry struct {
	scheme   Scheme
	prefix   string
	strategy strategy
}

// schemeTable is the closed prefix set. Matching is longest-prefix, so
// order here does not affect dispatch.
var schemeTable = [...]schemeEntry{
	{SchemeIPLD, "ipld://", strategyLinkedData},
	{SchemeDwebIPLD, "dweb:/ipld/", strategyLinkedData},
	{SchemeIPFS, "ipfs://", strategyBytes},
	{SchemeDwebIPFS, "dweb:/ipfs/", strategyBytes},
}

func (s Scheme) entry() (schemeEntry, bool) {
	for _, e := range schemeTable {
		if e.scheme == s {
			return e, true
		}
	}
	return schemeEntry{}, false
}

// Prefix returns the literal URI prefix, or "" for an unknown Scheme.
func (s Scheme) Prefix() string {
	e, _ := s.entry()
	return e.prefix
}

func (s Scheme) String() string {
	if p := s.Prefix(); p != "" {
		return p
	}
	return "unknown"
}

// LinkedData reports whether the scheme addresses structured blocks by CID.
func (s Scheme) LinkedData() bool {
	e, _ := s.entry()
	return e.strategy == strategyLinkedData
}

// Schemes lists the registered prefixes.
func Schemes() []string {
	out := make([]string, 0, len(schemeTable))
	for _, e := range schemeTable {
		out = append(out, e.prefix)
	}
	return out
}

// SplitURI matches uri against the registered prefixes (longest match,
// case-sensitive) and returns the scheme and the store-local remainder.
func SplitURI(uri string) (Scheme, string, error) {
	e, ok := match(uri)
	if !ok {
		return 0, "", newError(KindUnrecognizedScheme, uri, "unrecognized URI scheme", nil)
	}
	return e.scheme, uri[len(e.prefix):], nil
}

func match(uri string) (schemeEntry, bool) {
	var best schemeEntry
	found := false
	for _, e := range schemeTable {
		if !strings.HasPrefix(uri, e.prefix) {
			continue
		}
		if !found || len(e.prefix) > len(best.prefix) {
			best = e
			found = true
		}
	}
	return best, found
}
