// Package extraction turns unstructured uploads (PDFs, scans) into tabular
// data using Gemini. The model is instructed to return strict JSON; the
// response is defensively cleaned before parsing because models
// occasionally wrap output in Markdown fences anyway.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mzharov/finrecon/internal/logger"
	"github.com/mzharov/finrecon/internal/ratelimit"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// MetadataField is one labeled value the model pulled from the document
// header region (invoice number, issue date, vendor address and so on).
type MetadataField struct {
	Label    string `json:"label"`
	Value    string `json:"value"`
	Category string `json:"category,omitempty"`
}

// Result is the structured output of one extraction call.
type Result struct {
	DocumentType  string          `json:"documentType"`
	Metadata      []MetadataField `json:"metadata"`
	Headers       []string        `json:"headers"`
	Rows          [][]string      `json:"rows"`
	PageCount     int             `json:"pageCount"`
	Confidence    float64         `json:"confidence"`
	IsExtractable bool            `json:"isExtractable"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// Client calls the model with per-owner rate limiting.
type Client struct {
	model   string
	limiter ratelimit.Limiter
	timeout time.Duration
}

// NewClient creates an extraction client. Credentials come from the
// environment (GOOGLE_API_KEY or application default credentials).
func NewClient(model string, limiter ratelimit.Limiter, timeout time.Duration) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{model: model, limiter: limiter, timeout: timeout}
}

const extractionPrompt = `You are a financial document extraction engine.

Task:
- Identify the document type: one of "invoice", "bill", "bank_statement", "receipt", "other".
- Extract header metadata as labeled fields (document number, dates, counterparty name and address, totals, currency).
- Extract ALL tabular line data as a header row plus data rows of strings.
- Output STRICT JSON only (no comments, no trailing commas, no extra text).

Output a single JSON object with these fields:
- "documentType": string
- "metadata": array of {"label": string, "value": string, "category": string}
- "headers": array of strings (empty if the document has no table)
- "rows": array of arrays of strings, one per table row
- "pageCount": number
- "confidence": number between 0 and 1
- "isExtractable": boolean, false if the document is unreadable or not financial
- "warnings": array of strings for anything ambiguous

Rules:
- Keep cell values verbatim; do not normalize dates or numbers.
- If a value is missing use an empty string, never null.
- Return ONLY valid raw JSON.
- Do NOT wrap the response in code fences.
- Output must begin with "{" and end with "}".
`

// Extract runs the model over the file bytes. The ownerID keys the rate
// limiter; a rejected call returns ratelimit.ErrRateLimited unwrapped so
// handlers can translate it to 429.
func (c *Client) Extract(ctx context.Context, ownerID string, data []byte, mimeType string) (*Result, error) {
	if c.limiter != nil {
		if retryAfter, err := c.limiter.Allow(ownerID, time.Now()); err != nil {
			return nil, fmt.Errorf("Extract: retry in %s: %w", retryAfter.Round(time.Second), err)
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("Extract: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: extractionPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: mimeType,
						Data:     data,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Extract: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Extract: empty response from model")
	}

	result, err := ParseResponse(rawText)
	if err != nil {
		return nil, fmt.Errorf("Extract: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("owner", ownerID).
		Str("documentType", result.DocumentType).
		Int("rows", len(result.Rows)).
		Float64("confidence", result.Confidence).
		Msg("document extracted")
	return result, nil
}

// ParseResponse parses a raw model reply into a Result, stripping Markdown
// fences and surrounding junk first.
func ParseResponse(raw string) (*Result, error) {
	clean := cleanModelJSON(raw)

	var result Result
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	for i, row := range result.Rows {
		if len(result.Headers) > 0 && len(row) != len(result.Headers) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d has %d cells, expected %d", i, len(row), len(result.Headers)))
		}
	}
	return &result, nil
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// If there's still junk around the JSON object, keep only from the
	// first '{' to the last '}'.
	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
