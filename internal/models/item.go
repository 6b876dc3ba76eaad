package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/utsmok/ea-cli-django-sub002/internal/schema"
)

// WorkflowBucket partitions exports by review status.
type WorkflowBucket string

const (
	BucketInbox      WorkflowBucket = "inbox"
	BucketInProgress WorkflowBucket = "in_progress"
	BucketDone       WorkflowBucket = "done"
	BucketOverview   WorkflowBucket = "overview"
)

// Buckets lists the export partitions in output order.
var Buckets = []WorkflowBucket{BucketInbox, BucketInProgress, BucketDone, BucketOverview}

// Statuses returns the workflow statuses a bucket selects; nil means all.
func (b WorkflowBucket) Statuses() []string {
	switch b {
	case BucketInbox:
		return []string{schema.StatusToDo}
	case BucketInProgress:
		return []string{schema.StatusInProgress}
	case BucketDone:
		return []string{schema.StatusDone}
	default:
		return nil
	}
}

// CopyrightItem is the authoritative record for one course material.
// System-of-record columns are written only by system-feed merges,
// human-annotated columns only by faculty-feed merges.
type CopyrightItem struct {
	ID string `db:"id" json:"id"`

	// System of record.
	MaterialID   string  `db:"material_id" json:"materialId"`
	CourseCode   string  `db:"course_code" json:"courseCode"`
	CourseName   *string `db:"course_name" json:"courseName,omitempty"`
	Department   *string `db:"department" json:"department,omitempty"`
	Faculty      *string `db:"faculty" json:"faculty,omitempty"`
	Title        string  `db:"title" json:"title"`
	Author       *string `db:"author" json:"author,omitempty"`
	Publisher    *string `db:"publisher" json:"publisher,omitempty"`
	StudentCount *int    `db:"student_count" json:"studentCount,omitempty"`
	CanvasURL    *string `db:"canvas_url" json:"canvasUrl,omitempty"`
	FileExists   *string `db:"file_exists" json:"fileExists,omitempty"`
	PageCount    *int    `db:"page_count" json:"pageCount,omitempty"`

	// Human annotated.
	WorkflowStatus   string  `db:"workflow_status" json:"workflowStatus"`
	V1Classification *string `db:"v1_classification" json:"v1Classification,omitempty"`
	V2Classification *string `db:"v2_classification" json:"v2Classification,omitempty"`
	V2Lengte         *int    `db:"v2_lengte" json:"v2Lengte,omitempty"`
	Remarks          *string `db:"remarks" json:"remarks,omitempty"`
	ManualID         *string `db:"manual_id" json:"manualId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewCopyrightItem returns an item with human-annotated fields at their
// defined defaults. Only a system-feed merge may call this.
func NewCopyrightItem(materialID string) *CopyrightItem {
	return &CopyrightItem{
		MaterialID:     materialID,
		WorkflowStatus: schema.StatusToDo,
	}
}

// FieldValue returns the canonical string form of a field, or nil when the
// field is absent.
func (c *CopyrightItem) FieldValue(name string) *string {
	switch name {
	case schema.FieldMaterialID:
		return strPtr(c.MaterialID)
	case schema.FieldCourseCode:
		return strPtr(c.CourseCode)
	case schema.FieldCourseName:
		return c.CourseName
	case schema.FieldDepartment:
		return c.Department
	case schema.FieldFaculty:
		return c.Faculty
	case schema.FieldTitle:
		return strPtr(c.Title)
	case schema.FieldAuthor:
		return c.Author
	case schema.FieldPublisher:
		return c.Publisher
	case schema.FieldStudentCount:
		return intStr(c.StudentCount)
	case schema.FieldCanvasURL:
		return c.CanvasURL
	case schema.FieldFileExists:
		return c.FileExists
	case schema.FieldPageCount:
		return intStr(c.PageCount)
	case schema.FieldWorkflowStatus:
		return strPtr(c.WorkflowStatus)
	case schema.FieldV1Classification:
		return c.V1Classification
	case schema.FieldV2Classification:
		return c.V2Classification
	case schema.FieldV2Lengte:
		return intStr(c.V2Lengte)
	case schema.FieldRemarks:
		return c.Remarks
	case schema.FieldManualID:
		return c.ManualID
	default:
		return nil
	}
}

// SetField writes the canonical string form into the typed column.
// Integer-typed fields that fail to parse return an error so the caller
// can skip the field instead of storing garbage.
func (c *CopyrightItem) SetField(name string, value *string) error {
	field, ok := schema.FieldByName(name)
	if !ok {
		return fmt.Errorf("unknown field %s", name)
	}
	if field.Type == schema.TypeInteger && value != nil {
		n, err := strconv.Atoi(*value)
		if err != nil {
			return fmt.Errorf("field %s: %w", name, err)
		}
		switch name {
		case schema.FieldStudentCount:
			c.StudentCount = &n
		case schema.FieldPageCount:
			c.PageCount = &n
		case schema.FieldV2Lengte:
			c.V2Lengte = &n
		}
		return nil
	}

	switch name {
	case schema.FieldMaterialID:
		c.MaterialID = deref(value)
	case schema.FieldCourseCode:
		c.CourseCode = deref(value)
	case schema.FieldCourseName:
		c.CourseName = value
	case schema.FieldDepartment:
		c.Department = value
	case schema.FieldFaculty:
		c.Faculty = value
	case schema.FieldTitle:
		c.Title = deref(value)
	case schema.FieldAuthor:
		c.Author = value
	case schema.FieldPublisher:
		c.Publisher = value
	case schema.FieldCanvasURL:
		c.CanvasURL = value
	case schema.FieldFileExists:
		c.FileExists = value
	case schema.FieldWorkflowStatus:
		c.WorkflowStatus = deref(value)
	case schema.FieldV1Classification:
		c.V1Classification = value
	case schema.FieldV2Classification:
		c.V2Classification = value
	case schema.FieldRemarks:
		c.Remarks = value
	case schema.FieldManualID:
		c.ManualID = value
	case schema.FieldStudentCount, schema.FieldPageCount, schema.FieldV2Lengte:
		c.StudentCount, c.PageCount, c.V2Lengte = clearInt(name, c)
	default:
		return fmt.Errorf("unknown field %s", name)
	}
	return nil
}

// ExportRow renders the item as canonical display strings keyed by field
// name, ready for the workbook builder.
func (c *CopyrightItem) ExportRow() map[string]string {
	row := make(map[string]string, len(schema.Registry))
	for _, f := range schema.Registry {
		if v := c.FieldValue(f.Name); v != nil {
			row[f.Name] = *v
		} else {
			row[f.Name] = ""
		}
	}
	return row
}

func clearInt(name string, c *CopyrightItem) (*int, *int, *int) {
	sc, pc, vl := c.StudentCount, c.PageCount, c.V2Lengte
	switch name {
	case schema.FieldStudentCount:
		sc = nil
	case schema.FieldPageCount:
		pc = nil
	case schema.FieldV2Lengte:
		vl = nil
	}
	return sc, pc, vl
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intStr(n *int) *string {
	if n == nil {
		return nil
	}
	s := strconv.Itoa(*n)
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
