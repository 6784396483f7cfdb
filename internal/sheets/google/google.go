package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
)

// Exporter writes monthly reports into tabs of a single spreadsheet, one tab
// per owner and month.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

// New creates an exporter for spreadsheetID using service account
// credentials from the environment.
func New(ctx context.Context, spreadsheetID string) (*Exporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Exporter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		slog.DebugContext(ctx, "Using inline JSON credentials")
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		slog.DebugContext(ctx, "Reading credentials from file", "path", serviceAccountFile)
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created successfully")
	return service, nil
}

// Export writes report into its tab, creating the tab on first use and
// replacing any previous contents. The returned location names the
// spreadsheet and tab.
func (x *Exporter) Export(ctx context.Context, report core.Report) (string, error) {
	if x.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	title := TabTitle(report)
	if err := x.ensureTab(ctx, title); err != nil {
		return "", err
	}

	rng := sheetRange(title)
	if _, err := x.svc.Spreadsheets.Values.Clear(x.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear tab %q: %w", title, err)
	}

	vr := &gsheet.ValueRange{Values: BuildRows(report)}
	if _, err := x.svc.Spreadsheets.Values.Update(x.spreadsheetID, rng+"!A1", vr).
		ValueInputOption("USER_ENTERED").
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("write tab %q: %w", title, err)
	}

	slog.InfoContext(ctx, "Report exported to Google Sheets",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldOperation, applog.OpExport,
		applog.FieldOwner, report.Owner,
		applog.FieldMonth, report.Month.String(),
		"tab", title,
		"rows", len(vr.Values))
	return fmt.Sprintf("sheets:%s/%s", x.spreadsheetID, title), nil
}

func (x *Exporter) ensureTab(ctx context.Context, title string) error {
	ss, err := x.svc.Spreadsheets.Get(x.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := x.svc.Spreadsheets.BatchUpdate(x.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add tab %q: %w", title, err)
	}
	slog.InfoContext(ctx, "Created report tab", "tab", title)
	return nil
}

// TabTitle names the tab a report is written to.
func TabTitle(report core.Report) string {
	return fmt.Sprintf("%s %s", report.Owner, report.Month)
}

// sheetRange quotes a tab title for A1 notation.
func sheetRange(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

// BuildRows lays a report out as a summary block, a category table and the
// transaction list, separated by blank rows.
func BuildRows(report core.Report) [][]interface{} {
	in := report.Insight
	rows := [][]interface{}{
		{"Report", report.Owner, report.Month.String()},
		{"Summary", in.Narrative},
		{"Total", core.FormatAmount(in.TotalSpending)},
		{"Previous month", core.FormatAmount(in.PreviousMonthTotal)},
		{"Month over month %", in.MonthOverMonthPercent.StringFixed(2)},
		{},
		{"Category", "Amount"},
	}
	for _, c := range in.SortedCategories() {
		rows = append(rows, []interface{}{c.Name, core.FormatAmount(c.Amount)})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Date", "Category", "Description", "Amount", "Payment Method"})
	for _, e := range report.Expenses {
		rows = append(rows, []interface{}{
			e.Date.String(),
			e.Category,
			e.Description,
			core.FormatAmount(e.Amount),
			e.PaymentMethod,
		})
	}
	return rows
}
