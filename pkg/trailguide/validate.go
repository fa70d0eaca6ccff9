package trailguide

import "encoding/json"

// Structural validators, one per content kind. These are stand-ins for the
// external JSON-Schema validation step: they check required fields and basic
// coherence, returning a violation list that handlers render into the 400
// error body. An empty result means the candidate may be persisted.

func required(violations []Violation, field, value string) []Violation {
	if value == "" {
		violations = append(violations, Violation{Field: field, Message: "is required"})
	}
	return violations
}

func nonNegative(violations []Violation, field string, value int) []Violation {
	if value < 0 {
		violations = append(violations, Violation{Field: field, Message: "must not be negative"})
	}
	return violations
}

// ValidateStation checks a candidate station.
func ValidateStation(s *Station) []Violation {
	var vs []Violation
	vs = required(vs, "id", s.ID)
	vs = required(vs, "title", s.Title)
	vs = required(vs, "section", s.Section)
	vs = required(vs, "category", s.Category)
	vs = required(vs, "coordinates_utm.zone", s.CoordinatesUTM.Zone)

	// Exactly one easting and one northing; the pairs are mutually exclusive.
	if (s.CoordinatesUTM.East == nil) == (s.CoordinatesUTM.West == nil) {
		vs = append(vs, Violation{
			Field:   "coordinates_utm",
			Message: "exactly one of east or west must be set",
		})
	}
	if (s.CoordinatesUTM.North == nil) == (s.CoordinatesUTM.South == nil) {
		vs = append(vs, Violation{
			Field:   "coordinates_utm",
			Message: "exactly one of north or south must be set",
		})
	}

	if len(s.Contents) > 0 && !json.Valid(s.Contents) {
		vs = append(vs, Violation{Field: "contents", Message: "must be valid JSON"})
	}

	vs = nonNegative(vs, "rank", s.Rank)
	return vs
}

// ValidatePage checks a candidate page.
func ValidatePage(p *Page) []Violation {
	var vs []Violation
	vs = required(vs, "id", p.ID)
	vs = required(vs, "title", p.Title)
	vs = nonNegative(vs, "rank", p.Rank)
	return vs
}

// ValidateModal checks a candidate modal.
func ValidateModal(m *Modal) []Violation {
	var vs []Violation
	vs = required(vs, "id", m.ID)
	vs = required(vs, "title", m.Title)
	vs = required(vs, "close_text", m.CloseText)
	return vs
}

// ValidateAsset checks candidate asset metadata.
func ValidateAsset(a *Asset) []Violation {
	var vs []Violation
	vs = required(vs, "id", a.ID)
	vs = required(vs, "file_name", a.FileName)
	if !ValidAssetType(a.AssetType) {
		vs = append(vs, Violation{Field: "asset_type", Message: "is not a recognized asset type"})
	}
	if a.FileSize < 0 {
		vs = append(vs, Violation{Field: "file_size", Message: "must not be negative"})
	}
	return vs
}

// ValidateSection checks a candidate section.
func ValidateSection(s *Section) []Violation {
	var vs []Violation
	vs = required(vs, "id", s.ID)
	vs = required(vs, "title", s.Title)
	vs = nonNegative(vs, "rank", s.Rank)
	return vs
}

// ValidateLayer checks a candidate map layer.
func ValidateLayer(l *Layer) []Violation {
	var vs []Violation
	vs = required(vs, "id", l.ID)
	vs = required(vs, "name", l.Name)
	if len(l.GeoJSON) > 0 && !json.Valid(l.GeoJSON) {
		vs = append(vs, Violation{Field: "geojson", Message: "must be valid JSON"})
	}
	vs = nonNegative(vs, "rank", l.Rank)
	return vs
}

// ValidateRelease checks a candidate release row.
func ValidateRelease(r *Release) []Violation {
	var vs []Violation
	vs = required(vs, "bundle_path", r.BundlePath)
	vs = required(vs, "submitted_dt", r.SubmittedDT)
	return vs
}

// ValidateFeedbackItem checks a candidate feedback submission.
func ValidateFeedbackItem(f *FeedbackItem) []Violation {
	var vs []Violation
	vs = required(vs, "id", f.ID)
	vs = required(vs, "from.name", f.From.Name)
	vs = required(vs, "from.email", f.From.Email)
	vs = required(vs, "content", f.Content)
	return vs
}
