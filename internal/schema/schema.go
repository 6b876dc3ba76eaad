package schema

import (
	"fmt"
	"strings"
)

// SourceKind tags which feed a batch came from. The two kinds own disjoint
// field domains on the authoritative record.
type SourceKind string

const (
	SourceSystemFeed  SourceKind = "system-feed"
	SourceFacultyFeed SourceKind = "faculty-feed"
)

// Valid reports whether the source kind is one of the two known feeds.
func (k SourceKind) Valid() bool {
	return k == SourceSystemFeed || k == SourceFacultyFeed
}

// FieldType declares the coercion target for a canonical field.
type FieldType string

const (
	TypeText    FieldType = "text"
	TypeInteger FieldType = "integer"
	TypeDate    FieldType = "date"
	TypeCode    FieldType = "code"
)

// Canonical field names. The merge key is FieldMaterialID.
const (
	FieldMaterialID   = "material_id"
	FieldCourseCode   = "course_code"
	FieldCourseName   = "course_name"
	FieldDepartment   = "department"
	FieldFaculty      = "faculty"
	FieldTitle        = "title"
	FieldAuthor       = "author"
	FieldPublisher    = "publisher"
	FieldStudentCount = "student_count"
	FieldCanvasURL    = "canvas_url"
	FieldFileExists   = "file_exists"
	FieldPageCount    = "page_count"

	FieldWorkflowStatus   = "workflow_status"
	FieldV1Classification = "v1_classification"
	FieldV2Classification = "v2_classification"
	FieldV2Lengte         = "v2_lengte"
	FieldRemarks          = "remarks"
	FieldManualID         = "manual_id"
)

// Workflow statuses drive the export buckets.
const (
	StatusToDo       = "ToDo"
	StatusInProgress = "InProgress"
	StatusDone       = "Done"
)

// WorkflowStatuses is the dropdown list order on exported sheets.
var WorkflowStatuses = []string{StatusToDo, StatusInProgress, StatusDone}

// V1Classifications is the pre-2018 manual classification scheme.
var V1Classifications = []string{
	"korte overname",
	"middellange overname",
	"lange overname",
	"niet overgenomen",
}

// V2Classifications is the current classification scheme.
var V2Classifications = []string{
	"eigen werk",
	"open licentie",
	"overname kort",
	"overname middellang",
	"overname lang",
}

// Field describes one canonical field of a copyright item.
type Field struct {
	Name    string
	Type    FieldType
	Owner   SourceKind
	Options []string // allowed values for TypeCode fields, empty = free
}

// Registry lists every canonical field in export column order. The Owner
// tag is the single source of truth for the field-ownership invariant:
// merge paths derive their writable set from it and nothing else.
var Registry = []Field{
	{Name: FieldMaterialID, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldCourseCode, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldCourseName, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldDepartment, Type: TypeCode, Owner: SourceSystemFeed},
	{Name: FieldFaculty, Type: TypeCode, Owner: SourceSystemFeed},
	{Name: FieldTitle, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldAuthor, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldPublisher, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldStudentCount, Type: TypeInteger, Owner: SourceSystemFeed},
	{Name: FieldCanvasURL, Type: TypeText, Owner: SourceSystemFeed},
	{Name: FieldFileExists, Type: TypeCode, Owner: SourceSystemFeed, Options: []string{"yes", "no"}},
	{Name: FieldPageCount, Type: TypeInteger, Owner: SourceSystemFeed},
	{Name: FieldWorkflowStatus, Type: TypeCode, Owner: SourceFacultyFeed, Options: WorkflowStatuses},
	{Name: FieldV1Classification, Type: TypeCode, Owner: SourceFacultyFeed, Options: V1Classifications},
	{Name: FieldV2Classification, Type: TypeCode, Owner: SourceFacultyFeed, Options: V2Classifications},
	{Name: FieldV2Lengte, Type: TypeInteger, Owner: SourceFacultyFeed},
	{Name: FieldRemarks, Type: TypeText, Owner: SourceFacultyFeed},
	{Name: FieldManualID, Type: TypeText, Owner: SourceFacultyFeed},
}

// FieldByName returns the registry entry for a canonical field.
func FieldByName(name string) (Field, bool) {
	for _, f := range Registry {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// OwnedFields returns the canonical names writable by the given source
// kind, in registry order.
func OwnedFields(kind SourceKind) []string {
	var out []string
	for _, f := range Registry {
		if f.Owner == kind {
			out = append(out, f.Name)
		}
	}
	return out
}

// nullSentinels collapse to the canonical absent value before coercion.
var nullSentinels = map[string]bool{
	"":    true,
	"-":   true,
	"n/a": true,
	"na":  true,
}

// IsNullSentinel reports whether a raw cell denotes an absent value.
func IsNullSentinel(raw string) bool {
	trimmed := strings.TrimSpace(raw)
	return nullSentinels[strings.ToLower(trimmed)]
}

// NormalizeHeader folds a raw column header for alias matching:
// lowercased, surrounding whitespace trimmed, inner runs collapsed.
func NormalizeHeader(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}

// facultyByDepartment maps institutional department codes to faculty
// abbreviations. Unknown codes are reported, never guessed.
var facultyByDepartment = map[string]string{
	"BMS-PSY": "BMS",
	"BMS-COM": "BMS",
	"BMS-PA":  "BMS",
	"EWI-CS":  "EEMCS",
	"EWI-EE":  "EEMCS",
	"EWI-AM":  "EEMCS",
	"CTW-ME":  "ET",
	"CTW-CE":  "ET",
	"CTW-IDE": "ET",
	"TNW-AP":  "TNW",
	"TNW-CHE": "TNW",
	"TNW-BME": "TNW",
	"ITC-GEO": "ITC",
	"ITC-EOS": "ITC",
}

// Faculties lists the known faculty abbreviations.
func Faculties() []string {
	return []string{"BMS", "EEMCS", "ET", "ITC", "TNW"}
}

// ResolveFaculty maps a department code to its faculty abbreviation.
func ResolveFaculty(department string) (string, bool) {
	code := strings.ToUpper(strings.TrimSpace(department))
	faculty, ok := facultyByDepartment[code]
	return faculty, ok
}

// KnownFaculty reports whether the abbreviation is a valid faculty code.
func KnownFaculty(code string) bool {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, f := range Faculties() {
		if f == code {
			return true
		}
	}
	return false
}

func init() {
	// A duplicated alias would make header resolution ambiguous by
	// construction; fail fast rather than at first upload.
	for _, feed := range []*FeedSchema{SystemFeed, FacultyFeed} {
		if err := feed.validate(); err != nil {
			panic(fmt.Sprintf("schema: %v", err))
		}
	}
}
