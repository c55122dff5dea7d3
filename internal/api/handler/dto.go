package handler

// CleanupRequest represents a request to run a bulk invoice cleanup.
// Exactly one of ByNumbers and BeforeDate selects the invoices;
// ResumeNumbers carries the remainder of an earlier capped or stopped run.
type CleanupRequest struct {
	ByNumbers     []string `json:"by_numbers,omitempty"`
	BeforeDate    string   `json:"before_date,omitempty"` // YYYY-MM-DD
	ResumeNumbers []string `json:"resume_numbers,omitempty"`
	DryRun        bool     `json:"dry_run"`
	Confirmed     bool     `json:"confirmed"`
}

// ReconciliationParams represents the query window for a reconciliation run
type ReconciliationParams struct {
	From string `form:"from" binding:"required"` // YYYY-MM-DD
	To   string `form:"to" binding:"required"`   // YYYY-MM-DD
}

// ApplyRequest represents a request to settle selected matches
type ApplyRequest struct {
	From      string   `json:"from" binding:"required"` // YYYY-MM-DD
	To        string   `json:"to" binding:"required"`   // YYYY-MM-DD
	MatchIDs  []string `json:"match_ids" binding:"required,min=1"`
	DryRun    bool     `json:"dry_run"`
	Confirmed bool     `json:"confirmed"`
}

// AuditListParams represents pagination for the audit trail listing
type AuditListParams struct {
	Limit int `form:"limit,default=20" binding:"min=1,max=100"`
}
