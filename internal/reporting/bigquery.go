package reporting

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// AgingRow is one exported report line in the BigQuery schema.
type AgingRow struct {
	RowID        string     `bigquery:"row_id"` // REQUIRED
	OwnerID      string     `bigquery:"owner_id"`
	Direction    string     `bigquery:"direction"`
	Counterparty string     `bigquery:"counterparty"`
	Currency     string     `bigquery:"currency"`
	AsOfDate     civil.Date `bigquery:"as_of_date"` // DATE

	Current    float64 `bigquery:"current"`
	Days1To30  float64 `bigquery:"days_1_30"`
	Days31To60 float64 `bigquery:"days_31_60"`
	Days61To90 float64 `bigquery:"days_61_90"`
	Days90Plus float64 `bigquery:"days_90_plus"`
	Total      float64 `bigquery:"total"`

	ExportedTS time.Time `bigquery:"exported_ts"` // TIMESTAMP
}

// Exporter writes aging reports to a BigQuery table.
type Exporter struct {
	projectID string
	datasetID string
	tableID   string
}

// NewExporter creates an exporter for the given destination table.
func NewExporter(projectID, datasetID, tableID string) *Exporter {
	return &Exporter{projectID: projectID, datasetID: datasetID, tableID: tableID}
}

// Export streams the report's lines into the destination table.
func (e *Exporter) Export(ctx context.Context, report *AgingReport) error {
	client, err := bigquery.NewClient(ctx, e.projectID)
	if err != nil {
		return fmt.Errorf("Export: bigquery client: %w", err)
	}
	defer client.Close()

	return e.ExportWithClient(ctx, client, report)
}

// ExportWithClient streams the report using the provided client.
func (e *Exporter) ExportWithClient(ctx context.Context, client *bigquery.Client, report *AgingReport) error {
	rows := RowsFromReport(report)
	if len(rows) == 0 {
		return nil
	}

	table := client.DatasetInProject(e.projectID, e.datasetID).Table(e.tableID)
	if err := table.Inserter().Put(ctx, rows); err != nil {
		return fmt.Errorf("Export: inserting %d rows: %w", len(rows), err)
	}
	return nil
}

// RowsFromReport flattens a report into insertable rows.
func RowsFromReport(report *AgingReport) []*AgingRow {
	exported := time.Now().UTC()
	rows := make([]*AgingRow, 0, len(report.Lines))
	for _, line := range report.Lines {
		rows = append(rows, &AgingRow{
			RowID:        uuid.NewString(),
			OwnerID:      report.OwnerID,
			Direction:    string(report.Direction),
			Counterparty: line.Counterparty,
			Currency:     line.Currency,
			AsOfDate:     civil.DateOf(report.AsOf),
			Current:      line.Current.InexactFloat64(),
			Days1To30:    line.Days1To30.InexactFloat64(),
			Days31To60:   line.Days31To60.InexactFloat64(),
			Days61To90:   line.Days61To90.InexactFloat64(),
			Days90Plus:   line.Days90Plus.InexactFloat64(),
			Total:        line.Total.InexactFloat64(),
			ExportedTS:   exported,
		})
	}
	return rows
}
