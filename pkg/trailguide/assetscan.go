package trailguide

import (
	"regexp"
	"sort"
)

// Asset reference scanning.
//
// Rich content fields (station content blocks, page/modal HTML) embed asset
// references in two serialized forms: asset-bytes URLs inside markup
// attributes, and bare asset IDs under an "asset" key in structured blocks
// (e.g. gallery items). The scanner applies one regexp rule per form and
// unions the matches.
//
// This is a heuristic over serialized text, not a parser: it can both
// over-match (a UUID-shaped string in prose that happens to sit behind an
// "asset" key) and under-match (markup split across blocks). Both are
// accepted trade-offs; usage data feeds bundle selection and admin displays,
// not integrity constraints.

const uuidPattern = `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`

// ScanRule is one named asset-reference pattern. The asset ID must be the
// rule's first capture group.
type ScanRule struct {
	Name    string
	Pattern *regexp.Regexp
}

// ScanRules are the reference patterns applied to serialized content, in
// order:
//
//   - attr-url: asset-bytes URLs (<scheme>://<host>/api/v1/assets/<id>/bytes)
//     as the value of a src=, source=, poster=, or href= attribute. Quotes may
//     be backslash-escaped when the markup is itself embedded in JSON.
//   - asset-key: a bare asset ID as the value of an "asset" key in serialized
//     structured content.
var ScanRules = []ScanRule{
	{
		Name: "attr-url",
		Pattern: regexp.MustCompile(
			`(?i)(?:src|source|poster|href)\s*=\s*\\?["']?[a-z][a-z0-9+.-]*://[^"'\\\s]*?/api/v1/assets/(` +
				uuidPattern + `)/bytes`),
	},
	{
		Name: "asset-key",
		Pattern: regexp.MustCompile(
			`\\?"asset\\?"\s*:\s*\\?"(` + uuidPattern + `)\\?"`),
	},
}

// ScanAssetRefs returns the set of asset IDs referenced by one serialized
// content value, in undefined order.
func ScanAssetRefs(serialized string) []string {
	seen := make(map[string]struct{})
	for _, rule := range ScanRules {
		for _, m := range rule.Pattern.FindAllStringSubmatch(serialized, -1) {
			seen[m[1]] = struct{}{}
		}
	}

	refs := make([]string, 0, len(seen))
	for id := range seen {
		refs = append(refs, id)
	}
	return refs
}

// ExtractAssetRefs computes the full referenced-asset set for one object
// revision: direct field values taken verbatim, scan field values run through
// ScanAssetRefs, blanks discarded, all unioned. The result is sorted so that
// repeated extraction over the same content yields the same edge set.
func ExtractAssetRefs(direct []string, scanned []string) []string {
	seen := make(map[string]struct{})

	for _, id := range direct {
		if id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, value := range scanned {
		for _, id := range ScanAssetRefs(value) {
			seen[id] = struct{}{}
		}
	}

	refs := make([]string, 0, len(seen))
	for id := range seen {
		refs = append(refs, id)
	}
	sort.Strings(refs)
	return refs
}
