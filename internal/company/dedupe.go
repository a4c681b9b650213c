package company

import "strings"

// Deduplicate returns the candidates that survive a single order-preserving
// pass keyed first by website and then by name (both case-insensitive).
//
// A candidate with a new website is kept and marks both its website and
// name as seen. A candidate whose website is empty or already seen is kept
// only if its name is new. Everything else is dropped, so the first
// occurrence always wins.
func Deduplicate(candidates []Candidate) []Candidate {
	seenWebsites := make(map[string]struct{}, len(candidates))
	seenNames := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		wkey := dedupeKey(c.Website)
		nkey := dedupeKey(c.Name)

		if wkey != "" {
			if _, ok := seenWebsites[wkey]; !ok {
				seenWebsites[wkey] = struct{}{}
				if nkey != "" {
					seenNames[nkey] = struct{}{}
				}
				out = append(out, c)
				continue
			}
		}
		if nkey != "" {
			if _, ok := seenNames[nkey]; !ok {
				seenNames[nkey] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}

func dedupeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
