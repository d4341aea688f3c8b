package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"campuspay/internal/apperr"
	"campuspay/internal/gateway"
	"campuspay/internal/ledger"
	"campuspay/internal/metrics"
	"campuspay/internal/notification"
	"campuspay/internal/payment"
	"campuspay/internal/student"
	"campuspay/internal/subscription"
)

const (
	sourceVerify   = "verify"
	sourceWebhook  = "webhook"
	sourceReverify = "reverify"

	minSubscriptionYear = 2000
)

var yearPattern = regexp.MustCompile(`^\d{4}$`)

type Gateway interface {
	Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Authorization, error)
	Verify(ctx context.Context, reference string) (*gateway.TransactionDetails, error)
	VerifySignature(payload []byte, signature string) bool
}

type StudentDirectory interface {
	GetByID(ctx context.Context, id int64) (*student.Student, error)
	GetByUserID(ctx context.Context, userID int64) (*student.Student, error)
}

type Notifier interface {
	Notify(ctx context.Context, n *notification.Notification) error
}

type Config struct {
	Currency    string
	CallbackURL string
	Provider    string
	// MinAmount is the smallest subscription amount accepted at initialize. Zero disables it.
	MinAmount decimal.Decimal
}

type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	gateway       Gateway
	subscriptions payment.SubscriptionStore
	transactions  payment.TransactionLedger
	uow           payment.UnitOfWork
	students      StudentDirectory
	notifier      Notifier
	cfg           Config
	now           func() time.Time
}

func NewService(
	gw Gateway,
	subscriptions payment.SubscriptionStore,
	transactions payment.TransactionLedger,
	uow payment.UnitOfWork,
	students StudentDirectory,
	notifier Notifier,
	cfg Config,
	opts ...Option,
) *Service {
	s := &Service{
		gateway:       gw,
		subscriptions: subscriptions,
		transactions:  transactions,
		uow:           uow,
		students:      students,
		notifier:      notifier,
		cfg:           cfg,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type InitializeInput struct {
	StudentID int64
	Email     string
	Amount    decimal.Decimal
	Year      string
}

type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
	SubscriptionID   int64  `json:"subscription_id"`
}

// Outcome describes what a reconciliation did.
type Outcome string

const (
	// OutcomeApplied means this call moved the transaction out of pending.
	OutcomeApplied Outcome = "applied"
	// OutcomeAlreadyTerminal means an earlier reconciliation got there first.
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	// OutcomeInFlight means the gateway has not settled the charge yet.
	OutcomeInFlight Outcome = "in_flight"
)

type ReconcileResult struct {
	Reference        string        `json:"reference"`
	Outcome          Outcome       `json:"outcome"`
	Status           ledger.Status `json:"status"`
	SubscriptionPaid bool          `json:"subscription_paid"`
}

type VerifyResult struct {
	Details        *gateway.TransactionDetails `json:"details"`
	Reconciliation ReconcileResult             `json:"reconciliation"`
}

// SubscriptionHistory is a subscription together with every payment attempt made for it.
type SubscriptionHistory struct {
	*subscription.Subscription
	Transactions []*ledger.Transaction `json:"transactions"`
}

type ReverifySummary struct {
	Checked   int `json:"checked"`
	Settled   int `json:"settled"`
	InFlight  int `json:"in_flight"`
	Cancelled int `json:"cancelled"`
	Errors    int `json:"errors"`
}

// StudentForUser resolves the student record of an authenticated user.
func (s *Service) StudentForUser(ctx context.Context, userID int64) (*student.Student, error) {
	return s.students.GetByUserID(ctx, userID)
}

// InitializePayment opens (or refreshes) the year's subscription and starts a gateway
// checkout for it. The transaction row is written only after the gateway has answered.
func (s *Service) InitializePayment(ctx context.Context, in InitializeInput) (*InitializeResult, error) {
	now := s.now()
	if err := s.validateInitialize(in, now); err != nil {
		return nil, err
	}

	sub := &subscription.Subscription{
		StudentID: in.StudentID,
		Year:      in.Year,
		Amount:    in.Amount,
		Currency:  s.cfg.Currency,
		DueDate:   subscription.DueDateFor(now),
	}
	if err := s.subscriptions.Upsert(ctx, sub); err != nil {
		if errors.Is(err, subscription.ErrClosed) {
			return nil, err
		}
		log.Printf("PaymentService: failed to upsert subscription for student %d year %s: %v", in.StudentID, in.Year, err)
		return nil, apperr.Persistence("upsert subscription", err)
	}

	reference := payment.NewReference(in.StudentID, in.Year, now)
	metadata := map[string]string{
		"student_id":        strconv.FormatInt(in.StudentID, 10),
		"subscription_id":   strconv.FormatInt(sub.ID, 10),
		"subscription_year": in.Year,
	}

	auth, err := s.gateway.Initialize(ctx, gateway.InitializeRequest{
		Email:       strings.TrimSpace(in.Email),
		AmountMinor: in.Amount.Shift(2).IntPart(),
		Reference:   reference,
		CallbackURL: s.cfg.CallbackURL,
		Metadata:    metadata,
	})
	if err != nil {
		if gateway.IsOutcomeUnknown(err) {
			s.recordUnknownInitialize(ctx, sub, reference, err)
			return nil, &payment.UnconfirmedError{Reference: reference, Err: err}
		}
		log.Printf("PaymentService: gateway initialize failed for %s: %v", reference, err)
		return nil, err
	}

	txn := &ledger.Transaction{
		SubscriptionID: sub.ID,
		Reference:      reference,
		Amount:         sub.Amount,
		Provider:       s.cfg.Provider,
		Metadata: map[string]any{
			"access_code":       auth.AccessCode,
			"authorization_url": auth.AuthorizationURL,
			"email":             strings.TrimSpace(in.Email),
		},
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		log.Printf("PaymentService: gateway session %s opened but not recorded locally: %v", reference, err)
		return nil, apperr.Persistence("record transaction", err)
	}

	log.Printf("PaymentService: initialized payment %s for student %d year %s", reference, in.StudentID, in.Year)
	return &InitializeResult{
		AuthorizationURL: auth.AuthorizationURL,
		AccessCode:       auth.AccessCode,
		Reference:        reference,
		SubscriptionID:   sub.ID,
	}, nil
}

// recordUnknownInitialize keeps a pending row for a checkout the gateway may have opened,
// so a later verify can settle it.
func (s *Service) recordUnknownInitialize(ctx context.Context, sub *subscription.Subscription, reference string, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	txn := &ledger.Transaction{
		SubscriptionID: sub.ID,
		Reference:      reference,
		Amount:         sub.Amount,
		Provider:       s.cfg.Provider,
		Metadata: map[string]any{
			"initialize_outcome": "unknown",
			"initialize_error":   cause.Error(),
		},
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		log.Printf("PaymentService: MANUAL RECONCILIATION NEEDED: %s has unknown gateway outcome and could not be recorded: %v", reference, err)
		return
	}
	log.Printf("PaymentService: gateway outcome unknown for %s, kept as pending for re-verification: %v", reference, cause)
}

func (s *Service) validateInitialize(in InitializeInput, now time.Time) error {
	if in.StudentID <= 0 {
		return apperr.Invalid("student_id", "is required")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return apperr.Invalid("email", "must be a valid email address")
	}
	if !yearPattern.MatchString(in.Year) {
		return apperr.Invalid("year", "must be a four digit year")
	}
	year, _ := strconv.Atoi(in.Year)
	if year < minSubscriptionYear || year > now.Year()+1 {
		return apperr.Invalid("year", fmt.Sprintf("must be between %d and %d", minSubscriptionYear, now.Year()+1))
	}
	if !in.Amount.IsPositive() {
		return apperr.Invalid("amount", "must be greater than zero")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return apperr.Invalid("amount", "must have at most two decimal places")
	}
	if in.Amount.LessThan(s.cfg.MinAmount) {
		return apperr.Invalid("amount", "must be at least "+s.cfg.MinAmount.StringFixed(2))
	}
	return nil
}

// VerifyPayment asks the gateway about reference and reconciles local state with the answer.
func (s *Service) VerifyPayment(ctx context.Context, reference string) (*VerifyResult, error) {
	return s.verify(ctx, sourceVerify, reference)
}

func (s *Service) verify(ctx context.Context, source, reference string) (*VerifyResult, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, apperr.Invalid("reference", "is required")
	}

	details, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		log.Printf("PaymentService: gateway verify failed for %s: %v", reference, err)
		return nil, err
	}
	if details.Reference == "" {
		details.Reference = reference
	}

	result, err := s.reconcile(ctx, source, details)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{Details: details, Reconciliation: result}, nil
}

// HandleWebhook authenticates and applies one gateway event. A nil return means the
// delivery was processed and may be acknowledged.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("PaymentService: panic while handling webhook: %v", r)
			err = fmt.Errorf("webhook handling panicked: %v", r)
		}
	}()

	if !s.gateway.VerifySignature(payload, signature) {
		log.Printf("SECURITY: PaymentService: webhook rejected, signature mismatch (%d bytes)", len(payload))
		metrics.WebhookEventsTotal.WithLabelValues("unverified", "invalid_signature").Inc()
		return gateway.ErrInvalidSignature
	}

	var event gateway.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil || event.Event == "" {
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "malformed").Inc()
		return apperr.Invalid("payload", "is not a webhook event")
	}

	switch event.Event {
	case gateway.EventChargeSuccess, gateway.EventChargeFailed:
		var details gateway.TransactionDetails
		if err := json.Unmarshal(event.Data, &details); err != nil || details.Reference == "" {
			metrics.WebhookEventsTotal.WithLabelValues(event.Event, "malformed").Inc()
			return apperr.Invalid("data.reference", "is required")
		}
		if _, err := s.reconcile(ctx, sourceWebhook, &details); err != nil {
			metrics.WebhookEventsTotal.WithLabelValues(event.Event, "error").Inc()
			return err
		}

	case gateway.EventTransferSuccess, gateway.EventTransferFailed:
		var transfer gateway.TransferData
		if err := json.Unmarshal(event.Data, &transfer); err != nil {
			log.Printf("PaymentService: unreadable %s payload: %v", event.Event, err)
		}
		log.Printf("PaymentService: %s for transfer %s (status %s, amount %d)",
			event.Event, transfer.Reference, transfer.Status, transfer.Amount)

	default:
		log.Printf("PaymentService: ignoring webhook event %q", event.Event)
		metrics.WebhookEventsTotal.WithLabelValues("other", "ignored").Inc()
		return nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(event.Event, "processed").Inc()
	return nil
}

// reconcile applies the gateway's verdict for one reference in a single database
// transaction. CompleteIfPending is the only point where two racing reconciliations are
// ordered: the loser matches no row and does nothing.
func (s *Service) reconcile(ctx context.Context, source string, details *gateway.TransactionDetails) (ReconcileResult, error) {
	result := ReconcileResult{Reference: details.Reference}

	if !details.Settled() {
		result.Outcome = OutcomeInFlight
		result.Status = ledger.StatusPending
		metrics.ReconciliationsTotal.WithLabelValues(source, string(result.Outcome)).Inc()
		log.Printf("PaymentService: %s still %q at gateway, leaving pending", details.Reference, details.Status)
		return result, nil
	}

	var (
		completed *ledger.Transaction
		owner     *subscription.Subscription
	)
	err := s.uow.Do(ctx, func(st payment.Stores) error {
		txn, err := st.Transactions.GetByReference(ctx, details.Reference)
		if err != nil {
			return err
		}
		if txn.Status.Terminal() {
			result.Outcome = OutcomeAlreadyTerminal
			result.Status = txn.Status
			return nil
		}

		done, err := st.Transactions.CompleteIfPending(ctx, details.Reference, s.completionFor(source, txn, details))
		if errors.Is(err, ledger.ErrNotPending) {
			result.Outcome = OutcomeAlreadyTerminal
			current, err := st.Transactions.GetByReference(ctx, details.Reference)
			if err != nil {
				return err
			}
			result.Status = current.Status
			return nil
		}
		if err != nil {
			return err
		}
		result.Outcome = OutcomeApplied
		result.Status = done.Status
		completed = done

		sub, err := st.Subscriptions.GetByID(ctx, done.SubscriptionID)
		if err != nil {
			return err
		}
		owner = sub

		if done.Status != ledger.StatusSuccessful {
			return nil
		}
		paid, err := st.Subscriptions.MarkPaid(ctx, done.SubscriptionID, s.now(), details.Channel, details.Reference)
		if err != nil {
			return err
		}
		result.SubscriptionPaid = paid
		return nil
	})
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues(source, "error").Inc()
		if errors.Is(err, ledger.ErrNotFound) || errors.Is(err, subscription.ErrNotFound) {
			log.Printf("PaymentService: %s reconciliation for unknown reference %s", source, details.Reference)
			return result, err
		}
		log.Printf("PaymentService: %s reconciliation of %s rolled back: %v", source, details.Reference, err)
		return result, apperr.Persistence("reconcile "+details.Reference, err)
	}

	metrics.ReconciliationsTotal.WithLabelValues(source, string(result.Outcome)).Inc()
	if completed == nil {
		log.Printf("PaymentService: %s for %s is a no-op, already %s", source, details.Reference, result.Status)
		return result, nil
	}

	log.Printf("PaymentService: %s settled %s as %s (subscription %d paid=%t)",
		source, details.Reference, completed.Status, completed.SubscriptionID, result.SubscriptionPaid)
	s.notifyOutcome(ctx, owner, completed, result.SubscriptionPaid)
	return result, nil
}

func (s *Service) completionFor(source string, txn *ledger.Transaction, details *gateway.TransactionDetails) ledger.Completion {
	status := ledger.StatusFailed
	meta := map[string]any{
		"gateway_status":   details.Status,
		"gateway_response": details.GatewayResponse,
		"gateway_amount":   details.Amount,
		"reconciled_by":    source,
		"reconciled_at":    s.now().UTC().Format(time.RFC3339),
	}
	if details.Customer.Email != "" {
		meta["customer_email"] = details.Customer.Email
	}
	if details.PaidAt != nil {
		meta["gateway_paid_at"] = details.PaidAt.UTC().Format(time.RFC3339)
	}

	if details.Succeeded() {
		switch {
		case details.Amount != txn.Amount.Shift(2).IntPart():
			meta["reconcile_note"] = "amount_mismatch"
			log.Printf("SECURITY: PaymentService: %s paid %d minor units, expected %s", details.Reference, details.Amount, txn.Amount.StringFixed(2))
		case details.Currency != "" && s.cfg.Currency != "" && !strings.EqualFold(details.Currency, s.cfg.Currency):
			meta["reconcile_note"] = "currency_mismatch"
			log.Printf("SECURITY: PaymentService: %s paid in %s, expected %s", details.Reference, details.Currency, s.cfg.Currency)
		default:
			status = ledger.StatusSuccessful
		}
	}

	var providerID string
	if details.ID != 0 {
		providerID = strconv.FormatInt(details.ID, 10)
	}
	return ledger.Completion{
		Status:                status,
		PaymentMethod:         details.Channel,
		ProviderTransactionID: providerID,
		Metadata:              meta,
	}
}

// notifyOutcome tells the student how a settled charge ended. paid is false for a
// successful charge when the subscription had already been closed by another reference.
func (s *Service) notifyOutcome(ctx context.Context, sub *subscription.Subscription, txn *ledger.Transaction, paid bool) {
	if s.notifier == nil || sub == nil {
		return
	}
	st, err := s.students.GetByID(ctx, sub.StudentID)
	if err != nil {
		log.Printf("PaymentService: no recipient for %s notification: %v", txn.Reference, err)
		return
	}

	n := &notification.Notification{
		UserID: st.UserID,
		Type:   notification.TypePayment,
		Metadata: map[string]any{
			"reference":         txn.Reference,
			"subscription_id":   sub.ID,
			"subscription_year": sub.Year,
		},
	}
	amount := sub.Currency + " " + txn.Amount.StringFixed(2)
	switch {
	case txn.Status == ledger.StatusSuccessful && !paid:
		log.Printf("PaymentService: MANUAL REVIEW: %s settled but subscription %d was already closed, refund required", txn.Reference, sub.ID)
		n.Title = "Duplicate Payment Received"
		n.Message = fmt.Sprintf("We received an extra payment of %s for your %s subscription, which was already settled. It will be reviewed for a refund.", amount, sub.Year)
		n.Priority = notification.PriorityHigh
		n.Metadata["needs_refund"] = true
	case txn.Status == ledger.StatusSuccessful:
		n.Title = "Payment Successful"
		n.Message = fmt.Sprintf("Your %s subscription payment of %s was successful.", sub.Year, amount)
		n.Priority = notification.PriorityHigh
	default:
		n.Title = "Payment Failed"
		n.Message = fmt.Sprintf("Your %s subscription payment of %s could not be completed. Please try again.", sub.Year, amount)
		n.Priority = notification.PriorityNormal
	}

	// Delivery problems are logged by the notifier and never undo the payment.
	_ = s.notifier.Notify(ctx, n)
}

// PaymentHistory lists a student's subscriptions, newest year first, with their attempts.
func (s *Service) PaymentHistory(ctx context.Context, studentID int64) ([]SubscriptionHistory, error) {
	subs, err := s.subscriptions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, apperr.Persistence("list subscriptions", err)
	}

	history := make([]SubscriptionHistory, 0, len(subs))
	for _, sub := range subs {
		txns, err := s.transactions.ListBySubscription(ctx, sub.ID)
		if err != nil {
			return nil, apperr.Persistence("list transactions", err)
		}
		if txns == nil {
			txns = []*ledger.Transaction{}
		}
		history = append(history, SubscriptionHistory{Subscription: sub, Transactions: txns})
	}
	return history, nil
}

// SweepOverdue moves pending subscriptions whose due date has passed to overdue.
// A subscription is overdue from the day after its due date.
func (s *Service) SweepOverdue(ctx context.Context) (int64, error) {
	today := s.now().UTC().Truncate(24 * time.Hour)
	n, err := s.subscriptions.MarkOverdue(ctx, today)
	if err != nil {
		log.Printf("PaymentService: overdue sweep failed: %v", err)
		return 0, apperr.Persistence("mark overdue", err)
	}
	metrics.SubscriptionsMarkedOverdue.Add(float64(n))
	if n > 0 {
		log.Printf("PaymentService: marked %d subscriptions overdue", n)
	}
	return n, nil
}

// ReverifyPending re-asks the gateway about transactions left pending for longer than
// olderThan. Pending rows whose initialize never reached the gateway are cancelled.
func (s *Service) ReverifyPending(ctx context.Context, olderThan time.Duration, limit int) (ReverifySummary, error) {
	var summary ReverifySummary

	stale, err := s.transactions.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return summary, apperr.Persistence("list stale transactions", err)
	}

	for _, txn := range stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Checked++

		res, err := s.verify(ctx, sourceReverify, txn.Reference)
		switch {
		case err == nil && res.Reconciliation.Outcome == OutcomeInFlight:
			summary.InFlight++
		case err == nil:
			summary.Settled++
		case isUnknownAtGateway(err) && txn.Metadata["initialize_outcome"] == "unknown":
			if s.cancelOrphan(ctx, txn) {
				summary.Cancelled++
			} else {
				summary.Errors++
			}
		default:
			summary.Errors++
		}
	}

	log.Printf("PaymentService: re-verified %d pending transactions (%d settled, %d in flight, %d cancelled, %d errors)",
		summary.Checked, summary.Settled, summary.InFlight, summary.Cancelled, summary.Errors)
	return summary, nil
}

// cancelOrphan closes a pending row for a checkout the gateway never created.
func (s *Service) cancelOrphan(ctx context.Context, txn *ledger.Transaction) bool {
	_, err := s.transactions.CompleteIfPending(ctx, txn.Reference, ledger.Completion{
		Status: ledger.StatusCancelled,
		Metadata: map[string]any{
			"reconcile_note": "gateway_has_no_record",
			"reconciled_by":  sourceReverify,
			"reconciled_at":  s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil && !errors.Is(err, ledger.ErrNotPending) {
		log.Printf("PaymentService: failed to cancel orphaned %s: %v", txn.Reference, err)
		return false
	}
	log.Printf("PaymentService: cancelled %s, gateway has no record of it", txn.Reference)
	return true
}

// isUnknownAtGateway reports a definite "no such transaction" answer from the gateway.
func isUnknownAtGateway(err error) bool {
	var ge *gateway.Error
	if !errors.As(err, &ge) || ge.OutcomeUnknown {
		return false
	}
	return ge.StatusCode == 400 || ge.StatusCode == 404
}
