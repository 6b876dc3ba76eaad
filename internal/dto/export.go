package dto

// RunExportRequest selects the export scope. Faculty is a faculty
// abbreviation or "all".
type RunExportRequest struct {
	Faculty string `json:"faculty" binding:"required"`
}

// CompareRequest names two workbooks under the export directory.
type CompareRequest struct {
	Expected string `json:"expected" binding:"required"`
	Actual   string `json:"actual" binding:"required"`
}

// CleanupResponse reports pruned backup files.
type CleanupResponse struct {
	Removed []string `json:"removed"`
}

// ManifestQuery filters the export history listing.
type ManifestQuery struct {
	Faculty string `form:"faculty"`
	Limit   int    `form:"limit"`
}
