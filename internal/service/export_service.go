package service

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	appErrors "github.com/clearspend/expense-approval-api/pkg/errors"
	"github.com/clearspend/expense-approval-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult carries rendered bytes with response metadata.
type ExportResult struct {
	FileName    string
	ContentType string
	Data        []byte
}

// ExportService renders an expense's approval trail as a downloadable file.
type ExportService struct {
	approvals *ApprovalService
	expenses  expenseRepository
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(approvals *ApprovalService, expenses expenseRepository, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		approvals: approvals,
		expenses:  expenses,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

// ApprovalHistory renders the expense's decision trail.
func (s *ExportService) ApprovalHistory(ctx context.Context, expenseID string, format ExportFormat) (*ExportResult, error) {
	entries, err := s.approvals.History(ctx, expenseID)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"Approver", "Role", "Source", "Step", "Rule", "Status", "Comment", "Timestamp"},
	}
	for _, entry := range entries {
		row := map[string]string{
			"Approver":  entry.ApproverName,
			"Role":      string(entry.Role),
			"Source":    string(entry.Source),
			"Status":    string(entry.Status),
			"Timestamp": entry.Timestamp.Format("2006-01-02 15:04:05"),
		}
		if row["Approver"] == "" {
			row["Approver"] = entry.ApproverID
		}
		if entry.StepNumber != nil {
			row["Step"] = strconv.Itoa(*entry.StepNumber)
		}
		if entry.RuleName != nil {
			row["Rule"] = *entry.RuleName
		}
		if entry.Comment != nil {
			row["Comment"] = *entry.Comment
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case ExportCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("approval-history-%s.csv", expenseID),
			ContentType: "text/csv",
			Data:        data,
		}, nil
	case ExportPDF:
		data, err := s.pdf.Render(dataset, fmt.Sprintf("Approval history %s", expenseID))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			FileName:    fmt.Sprintf("approval-history-%s.pdf", expenseID),
			ContentType: "application/pdf",
			Data:        data,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
