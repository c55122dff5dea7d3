package ledgerapi

import (
	"math"
	"time"

	"github.com/practiceledger-recon/internal/domain/invoice"
)

// Direction selects which side of a bank account's feed to fetch.
type Direction string

const (
	DirectionCredit Direction = "RECEIVE"
	DirectionDebit  Direction = "SPEND"
)

// InvoiceRef carries both identifiers of an invoice into a write call. The
// remote API reports validation failures by internal id, so the number is
// needed to translate errors back into something an operator can read.
type InvoiceRef struct {
	ID     string
	Number string
}

// BankTransaction is one entry from a ledger bank account's transaction
// feed. Serves both the real-bank deposit feed and the clearing-account
// entry feed; the caller maps it onto the appropriate domain type.
type BankTransaction struct {
	ID          string
	Date        time.Time
	AmountCents int64
	Reference   string
	Reconciled  bool
	ContactName string
}

// Wire shapes of the remote ledger API.

type apiContact struct {
	Name string `json:"Name,omitempty"`
}

type apiPayment struct {
	PaymentID string  `json:"PaymentID,omitempty"`
	Amount    float64 `json:"Amount,omitempty"`
	Date      string  `json:"Date,omitempty"`
}

type apiInvoice struct {
	InvoiceID     string       `json:"InvoiceID,omitempty"`
	InvoiceNumber string       `json:"InvoiceNumber,omitempty"`
	Status        string       `json:"Status,omitempty"`
	Date          string       `json:"Date,omitempty"`
	Total         float64      `json:"Total,omitempty"`
	AmountDue     float64      `json:"AmountDue,omitempty"`
	Contact       apiContact   `json:"Contact,omitempty"`
	Payments      []apiPayment `json:"Payments,omitempty"`
}

type invoicesEnvelope struct {
	Invoices []apiInvoice `json:"Invoices"`
}

type apiBankTransaction struct {
	BankTransactionID string     `json:"BankTransactionID,omitempty"`
	Type              string     `json:"Type,omitempty"`
	Date              string     `json:"Date,omitempty"`
	Reference         string     `json:"Reference,omitempty"`
	Total             float64    `json:"Total,omitempty"`
	IsReconciled      bool       `json:"IsReconciled,omitempty"`
	Contact           apiContact `json:"Contact,omitempty"`
}

type bankTransactionsEnvelope struct {
	BankTransactions []apiBankTransaction `json:"BankTransactions"`
}

type apiBankTransfer struct {
	FromBankAccountID string  `json:"FromBankAccountID"`
	ToBankAccountID   string  `json:"ToBankAccountID"`
	Amount            float64 `json:"Amount"`
	Date              string  `json:"Date"`
	Reference         string  `json:"Reference,omitempty"`
}

type apiErrorEnvelope struct {
	Message  string `json:"Message"`
	Elements []struct {
		InvoiceID        string `json:"InvoiceID"`
		InvoiceNumber    string `json:"InvoiceNumber"`
		ValidationErrors []struct {
			Message string `json:"Message"`
		} `json:"ValidationErrors"`
	} `json:"Elements"`
}

// toCents converts a decimal currency amount off the wire to integer cents.
// All downstream comparisons happen on integers; float equality on money is
// a correctness bug, not a style preference.
func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// fromCents renders integer cents back to the decimal amount the wire wants.
func fromCents(cents int64) float64 {
	return float64(cents) / 100
}

// parseAPIDate accepts the remote API's date renderings, with and without a
// time component.
func parseAPIDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func mapInvoice(in apiInvoice) invoice.Record {
	rec := invoice.Record{
		ID:             in.InvoiceID,
		Number:         in.InvoiceNumber,
		Date:           parseAPIDate(in.Date),
		Status:         invoice.ParseStatus(in.Status),
		TotalCents:     toCents(in.Total),
		AmountDueCents: toCents(in.AmountDue),
		ContactName:    in.Contact.Name,
	}
	for _, p := range in.Payments {
		rec.Payments = append(rec.Payments, invoice.PaymentAllocation{
			ID:          p.PaymentID,
			AmountCents: toCents(p.Amount),
			Date:        parseAPIDate(p.Date),
		})
	}
	return rec
}

func mapBankTransaction(in apiBankTransaction) BankTransaction {
	return BankTransaction{
		ID:          in.BankTransactionID,
		Date:        parseAPIDate(in.Date),
		AmountCents: toCents(in.Total),
		Reference:   in.Reference,
		Reconciled:  in.IsReconciled,
		ContactName: in.Contact.Name,
	}
}
