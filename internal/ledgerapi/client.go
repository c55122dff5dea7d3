// Package ledgerapi is the gateway to the external accounting ledger's REST
// API: typed reads over invoices and bank transactions, and the irreversible
// write calls (void, delete, un-pay) the batch executor drives. All calls
// are bearer-authenticated through a TokenProvider and bounded by the
// configured request timeout.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/practiceledger-recon/internal/config"
	"github.com/practiceledger-recon/internal/domain/invoice"
)

const (
	// invoicePageSize matches the remote API's page size.
	invoicePageSize = 100
	// numbersPerRequest bounds how many OR-combined invoice-number clauses
	// go into one where expression, keeping the URL under the remote's
	// length limit.
	numbersPerRequest = 40
	// whereDateLayout renders a date into the remote filter grammar.
	whereDateLayout = "DateTime(2006, 1, 2)"
)

// tokenSource abstracts the TokenProvider for tests.
type tokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// Client is the typed ledger API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     tokenSource
	logger     *slog.Logger
}

// NewClient creates a ledger API client using the given token source.
func NewClient(logger *slog.Logger, cfg *config.LedgerConfig, tokens tokenSource) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		tokens:     tokens,
		logger:     logger,
	}
}

// FetchInvoice retrieves one invoice with its payment allocations. This is
// the fresh-state check the un-pay stage relies on: list responses do not
// include allocations, so every candidate is fetched individually.
func (c *Client) FetchInvoice(ctx context.Context, id string) (*invoice.Record, error) {
	var envelope invoicesEnvelope
	if err := c.do(ctx, http.MethodGet, "Invoices/"+id, nil, nil, &envelope); err != nil {
		return nil, err
	}
	if len(envelope.Invoices) == 0 {
		return nil, &NotFoundError{Resource: "invoice", ID: id}
	}
	rec := mapInvoice(envelope.Invoices[0])
	return &rec, nil
}

// FetchInvoicesByNumbers retrieves invoices by their human numbers. Numbers
// are OR-combined into where clauses in chunks because the remote rejects
// over-long URLs, and each chunk is paginated.
func (c *Client) FetchInvoicesByNumbers(ctx context.Context, numbers []string) ([]invoice.Record, error) {
	var records []invoice.Record
	for start := 0; start < len(numbers); start += numbersPerRequest {
		end := start + numbersPerRequest
		if end > len(numbers) {
			end = len(numbers)
		}

		clauses := make([]string, 0, end-start)
		for _, number := range numbers[start:end] {
			clauses = append(clauses, fmt.Sprintf("InvoiceNumber==%q", number))
		}

		chunk, err := c.fetchInvoicePages(ctx, strings.Join(clauses, " OR "))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch invoices by number (chunk %d): %w", start/numbersPerRequest, err)
		}
		records = append(records, chunk...)
	}
	return records, nil
}

// FetchInvoicesBefore retrieves every non-retired invoice dated strictly
// before the cutoff. The remote API cannot OR multiple statuses together
// with a date filter, so one paginated call sequence runs per status.
func (c *Client) FetchInvoicesBefore(ctx context.Context, cutoff time.Time) ([]invoice.Record, error) {
	statuses := []invoice.Status{
		invoice.StatusDraft,
		invoice.StatusSubmitted,
		invoice.StatusAuthorised,
		invoice.StatusPaid,
	}

	var records []invoice.Record
	for _, status := range statuses {
		where := fmt.Sprintf("Status==%q AND Date < %s", string(status), cutoff.Format(whereDateLayout))
		chunk, err := c.fetchInvoicePages(ctx, where)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s invoices before %s: %w", status, cutoff.Format("2006-01-02"), err)
		}
		records = append(records, chunk...)
	}
	return records, nil
}

// fetchInvoicePages walks the page sequence for one where clause.
func (c *Client) fetchInvoicePages(ctx context.Context, where string) ([]invoice.Record, error) {
	var records []invoice.Record
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("where", where)
		query.Set("page", fmt.Sprintf("%d", page))

		var envelope invoicesEnvelope
		if err := c.do(ctx, http.MethodGet, "Invoices", query, nil, &envelope); err != nil {
			return nil, err
		}

		for _, in := range envelope.Invoices {
			records = append(records, mapInvoice(in))
		}
		if len(envelope.Invoices) < invoicePageSize {
			break
		}
	}
	return records, nil
}

// FetchBankTransactions retrieves a bank account's transactions in a date
// window, filtered to the given direction and to unreconciled entries.
func (c *Client) FetchBankTransactions(ctx context.Context, accountID string, from, to time.Time, direction Direction) ([]BankTransaction, error) {
	where := fmt.Sprintf(
		"BankAccount.AccountID==Guid(%q) AND Type==%q AND Date >= %s AND Date <= %s",
		accountID, string(direction), from.Format(whereDateLayout), to.Format(whereDateLayout),
	)

	var transactions []BankTransaction
	for page := 1; ; page++ {
		query := url.Values{}
		query.Set("where", where)
		query.Set("page", fmt.Sprintf("%d", page))

		var envelope bankTransactionsEnvelope
		if err := c.do(ctx, http.MethodGet, "BankTransactions", query, nil, &envelope); err != nil {
			return nil, fmt.Errorf("failed to fetch bank transactions for account %s: %w", accountID, err)
		}

		for _, in := range envelope.BankTransactions {
			if in.IsReconciled {
				continue
			}
			transactions = append(transactions, mapBankTransaction(in))
		}
		if len(envelope.BankTransactions) < invoicePageSize {
			break
		}
	}
	return transactions, nil
}

// UpdateInvoiceStatus transitions a single invoice. Both identifiers travel
// with the request so a validation failure can be reported by number.
func (c *Client) UpdateInvoiceStatus(ctx context.Context, id, number string, status invoice.Status) error {
	body := invoicesEnvelope{Invoices: []apiInvoice{{
		InvoiceID:     id,
		InvoiceNumber: number,
		Status:        string(status),
	}}}
	if err := c.do(ctx, http.MethodPost, "Invoices/"+id, nil, body, nil); err != nil {
		return c.translateItemError(err, []InvoiceRef{{ID: id, Number: number}})
	}
	return nil
}

// UpdateInvoiceStatusBatch transitions a batch of invoices in one request.
// On a structured 400 the returned ValidationError carries per-item entries
// with numbers filled in from refs.
func (c *Client) UpdateInvoiceStatusBatch(ctx context.Context, refs []InvoiceRef, status invoice.Status) error {
	if len(refs) == 0 {
		return nil
	}
	body := invoicesEnvelope{Invoices: make([]apiInvoice, 0, len(refs))}
	for _, ref := range refs {
		body.Invoices = append(body.Invoices, apiInvoice{
			InvoiceID:     ref.ID,
			InvoiceNumber: ref.Number,
			Status:        string(status),
		})
	}
	if err := c.do(ctx, http.MethodPost, "Invoices", nil, body, nil); err != nil {
		return c.translateItemError(err, refs)
	}
	return nil
}

// DeletePayment removes a payment allocation from its invoice. The remote
// models this as a status write, not an HTTP DELETE.
func (c *Client) DeletePayment(ctx context.Context, paymentID string) error {
	body := map[string]string{"Status": "DELETED"}
	if err := c.do(ctx, http.MethodPost, "Payments/"+paymentID, nil, body, nil); err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", paymentID, err)
	}
	return nil
}

// CreateBankTransfer records the settlement transfer that moves a matched
// deposit's amount from the clearing account into the real bank account.
func (c *Client) CreateBankTransfer(ctx context.Context, fromAccountID, toAccountID string, amountCents int64, date time.Time, reference string) error {
	body := struct {
		BankTransfers []apiBankTransfer `json:"BankTransfers"`
	}{
		BankTransfers: []apiBankTransfer{{
			FromBankAccountID: fromAccountID,
			ToBankAccountID:   toAccountID,
			Amount:            fromCents(amountCents),
			Date:              date.Format("2006-01-02"),
			Reference:         reference,
		}},
	}
	if err := c.do(ctx, http.MethodPost, "BankTransfers", nil, body, nil); err != nil {
		return fmt.Errorf("failed to create bank transfer: %w", err)
	}
	return nil
}

// translateItemError fills human invoice numbers into a ValidationError's
// items, matching by remote id of the original request.
func (c *Client) translateItemError(err error, refs []InvoiceRef) error {
	valErr, ok := err.(*ValidationError)
	if !ok {
		return err
	}
	byID := make(map[string]string, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref.Number
	}
	for i := range valErr.Items {
		if valErr.Items[i].InvoiceNumber == "" {
			valErr.Items[i].InvoiceNumber = byID[valErr.Items[i].InvoiceID]
		}
	}
	return valErr
}

// do performs one authenticated call. On a 401 it invalidates the token
// cache and retries exactly once; all other failures map onto the typed
// error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	retried := false
	for {
		err := c.doOnce(ctx, method, path, query, body, out)
		if err == nil {
			return nil
		}
		if authErr, ok := err.(*AuthError); ok && authErr.StatusCode == http.StatusUnauthorized && !retried {
			c.logger.Warn("Ledger rejected token, refreshing and retrying", "path", path)
			c.tokens.Invalidate()
			retried = true
			continue
		}
		return err
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	endpoint := c.baseURL + "/" + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &AuthError{Message: fmt.Sprintf("request failed: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.parseError(resp, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}
	return nil
}

// parseError maps a failed response onto the error taxonomy. 400-class
// bodies are probed for the remote's per-item validation structure; when the
// structure is absent the whole request is reported as one failure.
func (c *Client) parseError(resp *http.Response, path string) error {
	raw, _ := io.ReadAll(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	case http.StatusNotFound:
		resource, id := splitResourcePath(path)
		return &NotFoundError{Resource: resource, ID: id}
	}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Elements) > 0 {
		valErr := &ValidationError{StatusCode: resp.StatusCode, Message: envelope.Message}
		for _, element := range envelope.Elements {
			messages := make([]string, 0, len(element.ValidationErrors))
			for _, ve := range element.ValidationErrors {
				messages = append(messages, ve.Message)
			}
			valErr.Items = append(valErr.Items, ItemValidationError{
				InvoiceID:     element.InvoiceID,
				InvoiceNumber: element.InvoiceNumber,
				Message:       strings.Join(messages, "; "),
			})
		}
		return valErr
	}

	message := envelope.Message
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = resp.Status
	}
	return &ValidationError{StatusCode: resp.StatusCode, Message: message}
}

func splitResourcePath(path string) (resource, id string) {
	parts := strings.SplitN(path, "/", 2)
	resource = strings.ToLower(strings.TrimSuffix(parts[0], "s"))
	if len(parts) > 1 {
		id = parts[1]
	}
	return resource, id
}
