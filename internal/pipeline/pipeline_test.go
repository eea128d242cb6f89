package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mzharov/finrecon/internal/docstore/inmemory"
	"github.com/mzharov/finrecon/internal/domain"
	"github.com/mzharov/finrecon/internal/extraction"
	"github.com/mzharov/finrecon/internal/filestore"
	"github.com/mzharov/finrecon/internal/importer"
	"github.com/mzharov/finrecon/internal/repo"
)

const invoiceCSV = "Invoice Number,Customer Name,Invoice Date,Due Date,Total,Currency\n" +
	"INV-1,Acme Corp,2024-01-15,2024-02-15,1000.00,USD\n" +
	"INV-2,Globex,2024-01-20,2024-02-20,250.50,USD\n"

type memoryStorage struct {
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Upload(ctx context.Context, objectName string, data []byte, contentType string) (string, error) {
	m.objects[objectName] = data
	return "gs://test-bucket/" + objectName, nil
}

func (m *memoryStorage) Download(ctx context.Context, uri string) ([]byte, error) {
	data, ok := m.objects[uri[len("gs://test-bucket/"):]]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", uri)
	}
	return data, nil
}

func testPipeline(t *testing.T) (*Pipeline, *inmemory.Store) {
	t.Helper()
	store := inmemory.NewStore()
	p := New(newMemoryStorage(), store, repo.Master, "USD")
	p.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return p, store
}

func TestImportFile_CleanCSV(t *testing.T) {
	p, store := testPipeline(t)
	ctx := context.Background()

	result, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", "", []byte(invoiceCSV))
	require.NoError(t, err)

	assert.Equal(t, domain.ImportCompleted, result.Status)
	assert.Equal(t, 2, result.RowsTotal)
	assert.Equal(t, 2, result.RowsImported)
	assert.Equal(t, 0, result.RowsFailed)
	assert.Empty(t, result.RowErrors)

	docs := repo.NewDocumentRepo(store, repo.Master)
	hash := filestore.ContentHash([]byte(invoiceCSV))
	doc, err := docs.Get(ctx, fmt.Sprintf("org_1_doc_%.12s_r1", hash))
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", doc.CounterpartyName)
	assert.Equal(t, "INV-1", doc.DocumentNumber)
	assert.Equal(t, "1000", doc.Total.String())
	assert.Equal(t, "USD", doc.Currency)
	assert.Equal(t, domain.PaymentUnpaid, doc.PaymentStatus)
	assert.Equal(t, time.Date(2024, 2, 15, 0, 0, 0, 0, time.UTC), doc.DueDate)
}

func TestImportFile_BadRowIsPartial(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	csv := invoiceCSV +
		"INV-3,Initech,2024-01-25,2024-02-25,not-a-number,USD\n"
	result, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", "", []byte(csv))
	require.NoError(t, err)

	assert.Equal(t, domain.ImportPartial, result.Status)
	assert.Equal(t, 3, result.RowsTotal)
	assert.Equal(t, 2, result.RowsImported)
	assert.Equal(t, 1, result.RowsFailed)
	require.Len(t, result.RowErrors, 1)
	assert.Equal(t, 3, result.RowErrors[0].Row)
	assert.Equal(t, "total", result.RowErrors[0].Field)
}

func TestImportFile_DuplicateContentSkipped(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	first, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", "", []byte(invoiceCSV))
	require.NoError(t, err)
	require.Equal(t, domain.ImportCompleted, first.Status)

	second, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices-again.csv", "", []byte(invoiceCSV))
	require.NoError(t, err)
	assert.Equal(t, domain.ImportSkipped, second.Status)
	assert.Equal(t, 0, second.RowsImported)
	require.NotEmpty(t, second.Warnings)
	assert.Contains(t, second.Warnings[0], first.RunID)
}

func TestImportFile_FetchesFromStorageByURI(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	uri, err := p.storage.Upload(ctx, "uploads/invoices.csv", []byte(invoiceCSV), "text/csv")
	require.NoError(t, err)

	result, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", uri, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.RowsImported)
}

func TestImportFile_TemplateMatchUpdatesUsage(t *testing.T) {
	p, store := testPipeline(t)
	ctx := context.Background()

	table, err := importer.ReadTable("invoices.csv", []byte(invoiceCSV))
	require.NoError(t, err)
	df, err := importer.DetectFormat(table)
	require.NoError(t, err)
	tpl := importer.TemplateFromFormat(df, "tpl_1", "org_1", "acme invoices", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	templates := repo.NewTemplateRepo(store, repo.Master)
	require.NoError(t, templates.Save(ctx, tpl))

	result, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", "", []byte(invoiceCSV))
	require.NoError(t, err)
	assert.Equal(t, domain.ImportCompleted, result.Status)

	updated, err := templates.Get(ctx, "tpl_1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.TimesUsed)
	assert.InDelta(t, 1.0, updated.SuccessRate, 0.001)

	runs := repo.NewImportRunRepo(store, repo.Master)
	run, err := runs.Get(ctx, result.RunID)
	require.NoError(t, err)
	assert.Equal(t, "tpl_1", run.TemplateID)
}

func TestImportFile_EmptyTotalRejectedNotAborted(t *testing.T) {
	p, _ := testPipeline(t)
	ctx := context.Background()

	// Missing the required total: the row fails normalization, the file
	// still imports the good row.
	csv := "Customer Name,Invoice Date,Total,Currency\n" +
		"Acme Corp,2024-01-15,1000.00,USD\n" +
		"Globex,2024-01-20,,USD\n"
	result, err := p.ImportFile(ctx, "org_1", domain.DirectionOutgoing, "invoices.csv", "", []byte(csv))
	require.NoError(t, err)

	assert.Equal(t, domain.ImportPartial, result.Status)
	assert.Equal(t, 1, result.RowsImported)
	assert.Equal(t, 1, result.RowsFailed)
}

type stubExtractor struct {
	result *extraction.Result
	err    error
}

func (s *stubExtractor) Extract(ctx context.Context, ownerID string, data []byte, mimeType string) (*extraction.Result, error) {
	return s.result, s.err
}

func TestImportExtracted_TableWithMetadataDefaults(t *testing.T) {
	p, store := testPipeline(t)
	ctx := context.Background()

	stub := &stubExtractor{result: &extraction.Result{
		DocumentType: "bill",
		Metadata: []extraction.MetadataField{
			{Label: "Vendor Name", Value: "Stationery Plus"},
			{Label: "Invoice Date", Value: "2024-02-01"},
			{Label: "Currency", Value: "EUR"},
		},
		Headers:       []string{"Due Date", "Total"},
		Rows:          [][]string{{"2024-03-01", "75.00"}},
		PageCount:     1,
		Confidence:    0.92,
		IsExtractable: true,
	}}

	result, err := p.ImportExtracted(ctx, stub, "org_1", domain.DirectionIncoming, "scan.pdf", "", "application/pdf", []byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	assert.Equal(t, domain.ImportCompleted, result.Status)
	require.Equal(t, 1, result.RowsImported)

	docs, err := repo.NewDocumentRepo(store, repo.Master).ListByOwner(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "bill", docs[0].DocumentType)
	assert.Equal(t, "Stationery Plus", docs[0].CounterpartyName)
	assert.Equal(t, "EUR", docs[0].Currency)
	assert.Equal(t, "75", docs[0].Total.String())
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), docs[0].DueDate)
}

func TestImportExtracted_MetadataOnlyDocument(t *testing.T) {
	p, store := testPipeline(t)
	ctx := context.Background()

	stub := &stubExtractor{result: &extraction.Result{
		DocumentType: "receipt",
		Metadata: []extraction.MetadataField{
			{Label: "Vendor", Value: "Corner Cafe"},
			{Label: "Date", Value: "2024-02-10"},
			{Label: "Total Amount", Value: "18.40"},
		},
		IsExtractable: true,
	}}

	result, err := p.ImportExtracted(ctx, stub, "org_1", domain.DirectionIncoming, "receipt.pdf", "", "application/pdf", []byte("receipt bytes"))
	require.NoError(t, err)
	assert.Equal(t, domain.ImportCompleted, result.Status)
	assert.Equal(t, 1, result.RowsTotal)
	assert.Equal(t, 1, result.RowsImported)

	docs, err := repo.NewDocumentRepo(store, repo.Master).ListByOwner(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Corner Cafe", docs[0].CounterpartyName)
	assert.Equal(t, "18.4", docs[0].Total.String())
	// No currency in the metadata: home currency applies.
	assert.Equal(t, "USD", docs[0].Currency)
}

func TestImportExtracted_NotExtractableFailsRun(t *testing.T) {
	p, store := testPipeline(t)
	ctx := context.Background()

	stub := &stubExtractor{result: &extraction.Result{
		IsExtractable: false,
		Warnings:      []string{"page is blank"},
	}}

	_, err := p.ImportExtracted(ctx, stub, "org_1", domain.DirectionIncoming, "blank.pdf", "", "application/pdf", []byte("blank"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not extractable")

	runs, err := repo.NewImportRunRepo(store, repo.Master).ListByOwner(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, domain.ImportFailed, runs[0].Status)
}

func TestMetadataTargetField(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Invoice Number", "documentNumber"},
		{"invoice_number", "documentNumber"},
		{"Due Date", "dueDate"},
		{"Date", "documentDate"},
		{"Vendor Name", "counterpartyName"},
		{"Grand Total", "total"},
		{"Currency Code", "currency"},
		{"Shipping Address", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, metadataTargetField(tc.label), "label %q", tc.label)
	}
}
