package invoice

// Action is the lifecycle mutation required to retire an invoice.
type Action string

const (
	ActionDelete        Action = "DELETE"
	ActionVoid          Action = "VOID"
	ActionUnpayThenVoid Action = "UNPAY_THEN_VOID"
	ActionSkip          Action = "SKIP"
)

// ActionFor maps an invoice status to the mutation that retires it. It is a
// pure, total function: every status, including unrecognised ones, maps to
// exactly one action and nothing here touches the network.
//
// Authorised invoices always go through the un-pay stage. The remote API's
// list responses do not say whether payment allocations exist, so the
// executor fetches each invoice and deletes whatever allocations it finds
// before voiding, rather than voiding blind.
func ActionFor(status Status) Action {
	switch status {
	case StatusDraft, StatusSubmitted:
		return ActionDelete
	case StatusAuthorised, StatusPaid:
		return ActionUnpayThenVoid
	default:
		// Voided, deleted and anything unrecognised: nothing to do.
		return ActionSkip
	}
}
