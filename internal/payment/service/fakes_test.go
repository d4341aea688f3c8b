package service

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"sort"
	"sync"
	"time"

	"campuspay/internal/gateway"
	"campuspay/internal/ledger"
	"campuspay/internal/notification"
	"campuspay/internal/payment"
	"campuspay/internal/student"
	"campuspay/internal/subscription"
)

// memDB is an in-memory stand-in for the subscriptions and transactions tables.
// Writes made through a unit of work are undone when the work returns an error.
type memDB struct {
	mu    sync.Mutex
	now   func() time.Time
	seq   int64
	subs  map[int64]*subscription.Subscription
	txns  map[string]*ledger.Transaction
	paids int

	markPaidErr    error
	beforeComplete func()
}

func newMemDB(now func() time.Time) *memDB {
	return &memDB{
		now:  now,
		subs: make(map[int64]*subscription.Subscription),
		txns: make(map[string]*ledger.Transaction),
	}
}

func cloneSub(s *subscription.Subscription) *subscription.Subscription {
	c := *s
	return &c
}

func cloneTxn(t *ledger.Transaction) *ledger.Transaction {
	c := *t
	c.Metadata = maps.Clone(t.Metadata)
	return &c
}

func (db *memDB) subscriptionCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.subs)
}

func (db *memDB) sub(id int64) *subscription.Subscription {
	db.mu.Lock()
	defer db.mu.Unlock()
	return cloneSub(db.subs[id])
}

func (db *memDB) txn(ref string) *ledger.Transaction {
	db.mu.Lock()
	defer db.mu.Unlock()
	t, ok := db.txns[ref]
	if !ok {
		return nil
	}
	return cloneTxn(t)
}

func (db *memDB) txnCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.txns)
}

func (db *memDB) paidTransitions() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.paids
}

type undoLog struct {
	steps []func()
}

func (u *undoLog) add(f func()) {
	if u != nil {
		u.steps = append(u.steps, f)
	}
}

type memSubscriptions struct {
	db   *memDB
	undo *undoLog
}

func (s memSubscriptions) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for _, existing := range s.db.subs {
		if existing.StudentID != sub.StudentID || existing.Year != sub.Year {
			continue
		}
		if existing.Status == subscription.StatusPaid || existing.Status == subscription.StatusCancelled {
			return subscription.ErrClosed
		}
		prev := cloneSub(existing)
		existing.Amount = sub.Amount
		existing.UpdatedAt = s.db.now()
		s.undo.add(func() { s.db.subs[prev.ID] = prev })
		*sub = *cloneSub(existing)
		return nil
	}

	s.db.seq++
	created := cloneSub(sub)
	created.ID = s.db.seq
	created.Status = subscription.StatusPending
	created.CreatedAt = s.db.now()
	created.UpdatedAt = created.CreatedAt
	s.db.subs[created.ID] = created
	s.undo.add(func() { delete(s.db.subs, created.ID) })
	*sub = *cloneSub(created)
	return nil
}

func (s memSubscriptions) GetByID(ctx context.Context, id int64) (*subscription.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	sub, ok := s.db.subs[id]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	return cloneSub(sub), nil
}

func (s memSubscriptions) ListByStudent(ctx context.Context, studentID int64) ([]*subscription.Subscription, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []*subscription.Subscription
	for _, sub := range s.db.subs {
		if sub.StudentID == studentID {
			out = append(out, cloneSub(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (s memSubscriptions) MarkPaid(ctx context.Context, id int64, paidAt time.Time, method, reference string) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.markPaidErr != nil {
		return false, s.db.markPaidErr
	}
	sub, ok := s.db.subs[id]
	if !ok || (sub.Status != subscription.StatusPending && sub.Status != subscription.StatusOverdue) {
		return false, nil
	}
	prev := cloneSub(sub)
	sub.Status = subscription.StatusPaid
	sub.PaymentDate = &paidAt
	sub.PaymentMethod = method
	sub.PaymentReference = reference
	s.db.paids++
	s.undo.add(func() {
		s.db.subs[prev.ID] = prev
		s.db.paids--
	})
	return true, nil
}

func (s memSubscriptions) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var n int64
	for _, sub := range s.db.subs {
		if sub.Status == subscription.StatusPending && sub.DueDate.Before(asOf) {
			sub.Status = subscription.StatusOverdue
			n++
		}
	}
	return n, nil
}

type memLedger struct {
	db   *memDB
	undo *undoLog
}

func (l memLedger) Create(ctx context.Context, txn *ledger.Transaction) error {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	if _, dup := l.db.txns[txn.Reference]; dup {
		return fmt.Errorf("duplicate reference %s", txn.Reference)
	}
	l.db.seq++
	created := cloneTxn(txn)
	created.ID = l.db.seq
	created.Status = ledger.StatusPending
	created.CreatedAt = l.db.now()
	created.UpdatedAt = created.CreatedAt
	l.db.txns[created.Reference] = created
	l.undo.add(func() { delete(l.db.txns, created.Reference) })
	*txn = *cloneTxn(created)
	return nil
}

func (l memLedger) GetByReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	txn, ok := l.db.txns[reference]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return cloneTxn(txn), nil
}

func (l memLedger) CompleteIfPending(ctx context.Context, reference string, c ledger.Completion) (*ledger.Transaction, error) {
	if hook := l.db.beforeComplete; hook != nil {
		hook()
	}

	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	txn, ok := l.db.txns[reference]
	if !ok || txn.Status != ledger.StatusPending {
		return nil, ledger.ErrNotPending
	}
	prev := cloneTxn(txn)
	txn.Status = c.Status
	if c.PaymentMethod != "" {
		txn.PaymentMethod = c.PaymentMethod
	}
	if c.ProviderTransactionID != "" {
		txn.ProviderTransactionID = c.ProviderTransactionID
	}
	if txn.Metadata == nil {
		txn.Metadata = map[string]any{}
	}
	maps.Copy(txn.Metadata, c.Metadata)
	l.undo.add(func() { l.db.txns[reference] = prev })
	return cloneTxn(txn), nil
}

func (l memLedger) ListBySubscription(ctx context.Context, subscriptionID int64) ([]*ledger.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var out []*ledger.Transaction
	for _, txn := range l.db.txns {
		if txn.SubscriptionID == subscriptionID {
			out = append(out, cloneTxn(txn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (l memLedger) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]*ledger.Transaction, error) {
	l.db.mu.Lock()
	defer l.db.mu.Unlock()
	var out []*ledger.Transaction
	for _, txn := range l.db.txns {
		if txn.Status == ledger.StatusPending && txn.CreatedAt.Before(olderThan) {
			out = append(out, cloneTxn(txn))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memUnitOfWork struct {
	db *memDB
}

func (u memUnitOfWork) Do(ctx context.Context, fn func(payment.Stores) error) error {
	undo := &undoLog{}
	err := fn(payment.Stores{
		Subscriptions: memSubscriptions{db: u.db, undo: undo},
		Transactions:  memLedger{db: u.db, undo: undo},
	})
	if err != nil {
		u.db.mu.Lock()
		for i := len(undo.steps) - 1; i >= 0; i-- {
			undo.steps[i]()
		}
		u.db.mu.Unlock()
	}
	return err
}

type fakeGateway struct {
	mu        sync.Mutex
	secret    string
	initErr   error
	initCalls []gateway.InitializeRequest
	verified  map[string]*gateway.TransactionDetails
	verifyErr map[string]error
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{
		secret:    secret,
		verified:  make(map[string]*gateway.TransactionDetails),
		verifyErr: make(map[string]error),
	}
}

func (g *fakeGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Authorization, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, req)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.Authorization{
		AuthorizationURL: "https://checkout.test/" + req.Reference,
		AccessCode:       "ac_" + req.Reference,
		Reference:        req.Reference,
	}, nil
}

func (g *fakeGateway) Verify(ctx context.Context, reference string) (*gateway.TransactionDetails, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.verifyErr[reference]; ok {
		return nil, err
	}
	d, ok := g.verified[reference]
	if !ok {
		return nil, &gateway.Error{Op: "verify", StatusCode: http.StatusNotFound, Message: "Transaction reference not found"}
	}
	c := *d
	return &c, nil
}

func (g *fakeGateway) VerifySignature(payload []byte, signature string) bool {
	return gateway.NewSignatureVerifier(g.secret, false).Verify(payload, signature)
}

func (g *fakeGateway) settle(reference, status string, amountMinor int64) *gateway.TransactionDetails {
	g.mu.Lock()
	defer g.mu.Unlock()
	d := &gateway.TransactionDetails{
		ID:              99,
		Status:          status,
		Reference:       reference,
		Amount:          amountMinor,
		Currency:        "NGN",
		Channel:         "card",
		GatewayResponse: status,
	}
	g.verified[reference] = d
	c := *d
	return &c
}

func (g *fakeGateway) initCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.initCalls)
}

type fakeStudents struct {
	byID map[int64]*student.Student
}

func (f fakeStudents) GetByID(ctx context.Context, id int64) (*student.Student, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, student.ErrNotFound
	}
	return s, nil
}

func (f fakeStudents) GetByUserID(ctx context.Context, userID int64) (*student.Student, error) {
	for _, s := range f.byID {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, student.ErrNotFound
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

func (r *recordingNotifier) Notify(ctx context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		out = append(out, n.Title)
	}
	return out
}
