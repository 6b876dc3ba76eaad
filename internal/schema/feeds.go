package schema

import (
	"fmt"
)

// FeedSchema declares how one source kind's spreadsheet maps onto the
// canonical fields: which header variants are accepted, which columns must
// be present, and which canonical fields the feed may write.
type FeedSchema struct {
	Kind     SourceKind
	Aliases  map[string][]string // canonical field -> accepted headers (normalized form)
	Required []string
}

// SystemFeed describes the automated institutional export. Headers vary
// between Osiris snapshots, hence the alias spread.
var SystemFeed = &FeedSchema{
	Kind: SourceSystemFeed,
	Aliases: map[string][]string{
		FieldMaterialID:   {"material id", "materiaal id", "material_id", "material identifier"},
		FieldCourseCode:   {"course code", "cursuscode", "vakcode"},
		FieldCourseName:   {"course name", "cursusnaam", "course"},
		FieldDepartment:   {"department", "afdeling", "dept", "opleiding"},
		FieldTitle:        {"title", "titel", "material title"},
		FieldAuthor:       {"author", "auteur", "authors"},
		FieldPublisher:    {"publisher", "uitgever"},
		FieldStudentCount: {"student count", "aantal studenten", "students", "enrolment"},
		FieldCanvasURL:    {"canvas url", "canvas link", "url"},
		FieldFileExists:   {"file exists", "bestand aanwezig", "file"},
		FieldPageCount:    {"page count", "aantal paginas", "pages"},
	},
	Required: []string{FieldMaterialID, FieldCourseCode, FieldTitle},
}

// FacultyFeed describes a re-submitted Data entry sheet. Its headers are
// the export's own, plus a few variants faculties have edited in over the
// years.
var FacultyFeed = &FeedSchema{
	Kind: SourceFacultyFeed,
	Aliases: map[string][]string{
		FieldMaterialID:       {"material id", "material_id"},
		FieldCourseCode:       {"course code"},
		FieldTitle:            {"title"},
		FieldAuthor:           {"author"},
		FieldFaculty:          {"faculty"},
		FieldFileExists:       {"file exists"},
		FieldWorkflowStatus:   {"status", "workflow status", "workflow"},
		FieldV1Classification: {"classification (old)", "classificatie (oud)", "classification old"},
		FieldV2Classification: {"classification (v2)", "classificatie (v2)", "classification v2"},
		FieldV2Lengte:         {"length (v2)", "lengte (v2)", "v2 lengte"},
		FieldRemarks:          {"remarks", "opmerkingen", "notes"},
		FieldManualID:         {"manual id", "manual identifier", "handmatig id"},
	},
	Required: []string{FieldMaterialID},
}

// ForKind returns the feed schema for a source kind.
func ForKind(kind SourceKind) (*FeedSchema, error) {
	switch kind {
	case SourceSystemFeed:
		return SystemFeed, nil
	case SourceFacultyFeed:
		return FacultyFeed, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
}

// Writable reports whether this feed owns the given canonical field.
func (s *FeedSchema) Writable(field string) bool {
	f, ok := FieldByName(field)
	return ok && f.Owner == s.Kind
}

// validate checks the alias table is unambiguous and only names canonical
// fields. Called once at package init.
func (s *FeedSchema) validate() error {
	seen := make(map[string]string)
	for field, aliases := range s.Aliases {
		if _, ok := FieldByName(field); !ok {
			return fmt.Errorf("%s feed maps unknown field %q", s.Kind, field)
		}
		for _, alias := range aliases {
			if alias != NormalizeHeader(alias) {
				return fmt.Errorf("%s feed alias %q is not in normalized form", s.Kind, alias)
			}
			if prev, dup := seen[alias]; dup {
				return fmt.Errorf("%s feed alias %q maps to both %s and %s", s.Kind, alias, prev, field)
			}
			seen[alias] = field
		}
	}
	for _, field := range s.Required {
		if _, ok := s.Aliases[field]; !ok {
			return fmt.Errorf("%s feed requires %q but has no aliases for it", s.Kind, field)
		}
	}
	return nil
}

// ResolveHeaders maps a raw header row to canonical field names.
// The returned slice is positional: entry i names the canonical field for
// column i, or "" when the column is unmapped (dropped, not an error).
// A required field with no column, or two columns resolving to the same
// field, is a schema-level failure.
func (s *FeedSchema) ResolveHeaders(headers []string) ([]string, error) {
	byAlias := make(map[string]string)
	for field, aliases := range s.Aliases {
		for _, alias := range aliases {
			byAlias[alias] = field
		}
	}

	resolved := make([]string, len(headers))
	positions := make(map[string]int)
	for i, raw := range headers {
		field, ok := byAlias[NormalizeHeader(raw)]
		if !ok {
			continue
		}
		if prev, dup := positions[field]; dup {
			return nil, fmt.Errorf("columns %d and %d both map to %s", prev+1, i+1, field)
		}
		positions[field] = i
		resolved[i] = field
	}

	for _, field := range s.Required {
		if _, ok := positions[field]; !ok {
			return nil, fmt.Errorf("required column %s not found", field)
		}
	}
	return resolved, nil
}
