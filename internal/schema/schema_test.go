package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnershipDomainsAreDisjoint(t *testing.T) {
	system := OwnedFields(SourceSystemFeed)
	faculty := OwnedFields(SourceFacultyFeed)

	seen := make(map[string]bool)
	for _, f := range system {
		seen[f] = true
	}
	for _, f := range faculty {
		assert.False(t, seen[f], "field %s owned by both feeds", f)
	}
	assert.Len(t, append(system, faculty...), len(Registry))
}

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"Course Code":     "course code",
		"  COURSE   code": "course code",
		"Titel\t":         "titel",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeHeader(raw))
	}
}

func TestIsNullSentinel(t *testing.T) {
	for _, raw := range []string{"", "-", "N/A", "n/a", "  ", "\t"} {
		assert.True(t, IsNullSentinel(raw), "raw %q", raw)
	}
	for _, raw := range []string{"0", "none", "x"} {
		assert.False(t, IsNullSentinel(raw), "raw %q", raw)
	}
}

func TestResolveHeadersSystemFeed(t *testing.T) {
	headers := []string{"Material ID", "Cursuscode", "Titel", "Auteur", "Ignore Me"}
	resolved, err := SystemFeed.ResolveHeaders(headers)
	require.NoError(t, err)
	assert.Equal(t, []string{FieldMaterialID, FieldCourseCode, FieldTitle, FieldAuthor, ""}, resolved)
}

func TestResolveHeadersMissingRequired(t *testing.T) {
	_, err := SystemFeed.ResolveHeaders([]string{"Titel", "Auteur"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "material_id")
}

func TestResolveHeadersAmbiguousColumn(t *testing.T) {
	_, err := SystemFeed.ResolveHeaders([]string{"Material ID", "material_id", "Course Code", "Title"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "material_id")
}

func TestResolveFaculty(t *testing.T) {
	faculty, ok := ResolveFaculty("ewi-cs")
	require.True(t, ok)
	assert.Equal(t, "EEMCS", faculty)

	_, ok = ResolveFaculty("XXX-99")
	assert.False(t, ok)
}

func TestFacultyFeedWritableSet(t *testing.T) {
	assert.True(t, FacultyFeed.Writable(FieldWorkflowStatus))
	assert.True(t, FacultyFeed.Writable(FieldRemarks))
	// System-of-record fields present in the sheet are not writable by
	// the faculty feed even though the columns exist.
	assert.False(t, FacultyFeed.Writable(FieldTitle))
	assert.False(t, FacultyFeed.Writable(FieldMaterialID))
}
