package service

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	appErrors "github.com/utsmok/ea-cli-django-sub002/pkg/errors"
	"github.com/utsmok/ea-cli-django-sub002/pkg/excel"
)

type parityStorage interface {
	Path(filename string) string
}

// ParityService compares two exported workbooks cell by cell. It exists
// for shadow runs against the previous generation of the export tooling:
// same database, both tools, then a diff of what they wrote.
type ParityService struct {
	storage parityStorage
	logger  *zap.Logger
}

// NewParityService constructs the service.
func NewParityService(storage parityStorage, logger *zap.Logger) *ParityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ParityService{storage: storage, logger: logger}
}

// Compare diffs two workbooks under the export directory. A mismatch is a
// finding, not an error; only unreadable files fail.
func (s *ParityService) Compare(_ context.Context, expected, actual string) (*excel.ParityReport, error) {
	expectedPath := s.storage.Path(expected)
	actualPath := s.storage.Path(actual)
	for _, p := range []string{expectedPath, actualPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("workbook %s not found", p))
		}
	}

	report, err := excel.CompareWorkbooks(expectedPath, actualPath)
	if err != nil {
		return nil, fmt.Errorf("compare workbooks: %w", err)
	}
	if !report.Clean() {
		s.logger.Warn("workbook parity mismatch",
			zap.String("expected", expected),
			zap.String("actual", actual),
			zap.Int("mismatched_cells", len(report.MismatchedCells)),
			zap.Int("missing_rows", len(report.MissingRows)))
	}
	return report, nil
}
