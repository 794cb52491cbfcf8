package services

import (
	"context"
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/cleansing-engine/pkg/models"
	"github.com/ekaya-inc/cleansing-engine/pkg/repositories"
)

//go:embed field_titles.yaml
var fieldTitlesYAML []byte

// CSVFilename is the suggested download name for ExportCSV output.
const CSVFilename = "Data Cleansing Results.csv"

// csvHeader and csvAttributes must stay in the same order.
var (
	csvHeader     = []string{"Address Line 1", "PM Property ID", "Tax Lot ID", "Custom ID", "Field", "Error Message", "Severity"}
	csvAttributes = []string{"address_line_1", "pm_property_id", "tax_lot_id", "custom_id_1"}
)

// FieldTitles maps raw column names to display titles.
type FieldTitles map[string]string

// ParseFieldTitles reads a catalog of the form "fields: {column: title}".
func ParseFieldTitles(data []byte) (FieldTitles, error) {
	var doc struct {
		Fields map[string]string `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse field titles: %w", err)
	}
	if doc.Fields == nil {
		doc.Fields = map[string]string{}
	}
	return FieldTitles(doc.Fields), nil
}

var defaultFieldTitles = sync.OnceValues(func() (FieldTitles, error) {
	return ParseFieldTitles(fieldTitlesYAML)
})

// DefaultFieldTitles returns the built-in catalog.
func DefaultFieldTitles() FieldTitles {
	titles, err := defaultFieldTitles()
	if err != nil {
		// The catalog is embedded at build time; a parse failure is a programming error.
		panic(err)
	}
	return titles
}

// Title returns the display title of column, or column itself when unknown.
func (t FieldTitles) Title(column string) string {
	if title, ok := t[column]; ok {
		return title
	}
	return column
}

// CleansingService serves cached cleansing results to the label workflow.
type CleansingService interface {
	// GetResults returns the findings for an import file with display field
	// titles, plus the persisted labels named after error-severity messages.
	GetResults(ctx context.Context, organizationID, importFileID int64) (*models.CleansingResults, error)

	// GetProgress returns the cleansing progress percentage for an import file.
	GetProgress(ctx context.Context, organizationID, importFileID int64) (int, error)

	// ExportCSV writes one CSV row per finding.
	ExportCSV(ctx context.Context, organizationID, importFileID int64, w io.Writer) error
}

type cleansingService struct {
	importFiles repositories.ImportFileRepository
	labelRepo   repositories.LabelRepository
	cache       repositories.CleansingCache
	titles      FieldTitles
	logger      *zap.Logger
}

// NewCleansingService creates a cleansing service. A nil titles catalog uses
// DefaultFieldTitles.
func NewCleansingService(
	importFiles repositories.ImportFileRepository,
	labelRepo repositories.LabelRepository,
	cache repositories.CleansingCache,
	titles FieldTitles,
	logger *zap.Logger,
) CleansingService {
	if titles == nil {
		titles = DefaultFieldTitles()
	}
	return &cleansingService{
		importFiles: importFiles,
		labelRepo:   labelRepo,
		cache:       cache,
		titles:      titles,
		logger:      logger.Named("cleansing"),
	}
}

var _ CleansingService = (*cleansingService)(nil)

func (s *cleansingService) GetResults(ctx context.Context, organizationID, importFileID int64) (*models.CleansingResults, error) {
	file, groups, err := s.load(ctx, organizationID, importFileID)
	if err != nil {
		return nil, err
	}

	var errorMessages []string
	seen := make(map[string]bool)
	for _, g := range groups {
		for _, f := range g.Findings {
			// Only errors produce labels.
			if f.Severity == models.SeverityError && !seen[f.Message] {
				seen[f.Message] = true
				errorMessages = append(errorMessages, f.Message)
			}
			f.Field = s.titles.Title(f.Field)
		}
	}

	existing, err := s.labelRepo.ListByNames(ctx, organizationID, errorMessages)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels for findings: %w", err)
	}

	s.logger.Debug("Loaded cleansing results",
		zap.Int64("import_file_id", importFileID),
		zap.Int("records", len(groups)),
		zap.Int("error_messages", len(errorMessages)),
		zap.Int("labels", len(existing)))

	return &models.CleansingResults{
		ImportFile: file,
		Results:    groups,
		Labels:     existing,
	}, nil
}

func (s *cleansingService) GetProgress(ctx context.Context, organizationID, importFileID int64) (int, error) {
	if _, err := s.importFiles.GetByID(ctx, organizationID, importFileID); err != nil {
		return 0, err
	}
	return s.cache.GetProgress(ctx, importFileID)
}

func (s *cleansingService) ExportCSV(ctx context.Context, organizationID, importFileID int64, w io.Writer) error {
	_, groups, err := s.load(ctx, organizationID, importFileID)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	row := make([]string, len(csvHeader))
	for _, g := range groups {
		for i, name := range csvAttributes {
			row[i], _ = g.Attribute(name)
		}
		for _, f := range g.Findings {
			n := len(csvAttributes)
			row[n] = s.titles.Title(f.Field)
			row[n+1] = f.Message
			row[n+2] = string(f.Severity)
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write csv row for record %d: %w", g.RecordID, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// load checks that the import file belongs to the organization before
// reading its cached results.
func (s *cleansingService) load(ctx context.Context, organizationID, importFileID int64) (*models.ImportFile, []*models.RecordValidationGroup, error) {
	file, err := s.importFiles.GetByID(ctx, organizationID, importFileID)
	if err != nil {
		return nil, nil, err
	}
	groups, err := s.cache.GetResults(ctx, importFileID)
	if err != nil {
		return nil, nil, err
	}
	return file, groups, nil
}
