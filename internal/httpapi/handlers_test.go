package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"sms-panel/internal/auth"
	"sms-panel/internal/dispatch"
	"sms-panel/internal/ledger"
	"sms-panel/internal/policy"
	"sms-panel/internal/rbac"
	"sms-panel/internal/topup"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeDispatcher struct {
	req dispatch.SendRequest
	res dispatch.SendResult
	err error
}

func (f *fakeDispatcher) Send(_ context.Context, req dispatch.SendRequest) (dispatch.SendResult, error) {
	f.req = req
	return f.res, f.err
}

type fakeBalances struct {
	account ledger.Account
	getErr  error

	creditBalance int64
	creditErr     error
	debitBalance  int64
	debitErr      error

	lastReason string
	lastActor  string
}

func (f *fakeBalances) GetAccount(_ context.Context, _ string) (ledger.Account, error) {
	return f.account, f.getErr
}

func (f *fakeBalances) Credit(_ context.Context, _ string, _ int64, reason, actor string) (int64, ledger.Adjustment, error) {
	f.lastReason, f.lastActor = reason, actor
	return f.creditBalance, ledger.Adjustment{}, f.creditErr
}

func (f *fakeBalances) AdminDebit(_ context.Context, _ string, _ int64, reason, actor string) (int64, ledger.Adjustment, error) {
	f.lastReason, f.lastActor = reason, actor
	return f.debitBalance, ledger.Adjustment{}, f.debitErr
}

type fakeTopups struct {
	req     topup.ProcessRequest
	actor   string
	balance int64
	err     error
}

func (f *fakeTopups) Process(_ context.Context, req topup.ProcessRequest, actor string) (int64, error) {
	f.req, f.actor = req, actor
	return f.balance, f.err
}

type fakeTokens struct {
	token string
	err   error
	role  string
}

func (f *fakeTokens) Issue(_ time.Time, _ string, role string) (string, error) {
	f.role = role
	return f.token, f.err
}

type fakeKeys struct {
	accountID string
	err       error
}

func (f *fakeKeys) Resolve(_ context.Context, _ string) (string, error) { return f.accountID, f.err }
func (f *fakeKeys) TouchLastUsed(_ context.Context, _ string, _ time.Time) error {
	return nil
}

type fakeSubmitNotifier struct {
	calls []string
}

func (f *fakeSubmitNotifier) TopupSubmitted(_ context.Context, accountID, amount string) {
	f.calls = append(f.calls, accountID+":"+amount)
}

// identity stands in for auth.RequireCredential in tests.
func identity(accountID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), accountID, role, auth.MethodBearer)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

type fixture struct {
	dispatcher *fakeDispatcher
	balances   *fakeBalances
	topups     *fakeTopups
	tokens     *fakeTokens
	keys       *fakeKeys
	notifier   *fakeSubmitNotifier
	server     *Server
}

func newFixture() *fixture {
	fx := &fixture{
		dispatcher: &fakeDispatcher{},
		balances:   &fakeBalances{},
		topups:     &fakeTopups{},
		tokens:     &fakeTokens{token: "tok"},
		keys:       &fakeKeys{accountID: "acct-1"},
		notifier:   &fakeSubmitNotifier{},
	}
	fx.server = NewServer(ServerConfig{
		Dispatcher: fx.dispatcher,
		Balances:   fx.balances,
		Topups:     fx.topups,
		Tokens:     fx.tokens,
		Keys:       fx.keys,
		Notifier:   fx.notifier,
		TokenTTL:   15 * time.Minute,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return fx
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode response %q: %v", w.Body.String(), err)
		}
	}
	return w, out
}

func TestHandleSend_Success(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.res = dispatch.SendResult{Accepted: true, Message: "ok", CostMinor: 600, BalanceMinor: 9400}
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/sms/send", gin.H{"to": "9811111111,9822222222,9833333333", "text": "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if out["error"] != false {
		t.Fatalf("error flag set: %v", out)
	}
	if out["cost"] != "6.00" || out["new_balance"] != "94.00" {
		t.Fatalf("amounts = %v / %v", out["cost"], out["new_balance"])
	}
	if fx.dispatcher.req.AccountID != "acct-1" {
		t.Fatalf("account from context not used: %q", fx.dispatcher.req.AccountID)
	}
}

func TestHandleSend_PolicyViolation(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.err = &policy.Violation{Term: "casino"}
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/sms/send", gin.H{"to": "981", "text": "visit casino"})
	if w.Code != http.StatusOK {
		t.Fatalf("business rejection must answer 200, got %d", w.Code)
	}
	if out["error"] != true || out["message"] != "Message contains blocked word: casino" {
		t.Fatalf("unexpected body: %v", out)
	}
}

func TestHandleSend_InsufficientBalance(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.err = ledger.ErrInsufficientBalance
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/sms/send", gin.H{"to": "981", "text": "hi"})
	if w.Code != http.StatusOK || out["error"] != true || out["message"] != "Insufficient balance" {
		t.Fatalf("got %d %v", w.Code, out)
	}
}

func TestHandleSend_CarrierRejected(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.res = dispatch.SendResult{Accepted: false, Message: "SMS gateway unreachable"}
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/sms/send", gin.H{"to": "981", "text": "hi"})
	if w.Code != http.StatusOK || out["error"] != true || out["message"] != "SMS gateway unreachable" {
		t.Fatalf("got %d %v", w.Code, out)
	}
}

func TestHandleSend_InternalError(t *testing.T) {
	fx := newFixture()
	fx.dispatcher.err = errors.New("boom")
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/sms/send", gin.H{"to": "981", "text": "hi"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	if out["message"] == "boom" {
		t.Fatal("internal detail leaked to client")
	}
}

func TestHandleBalance(t *testing.T) {
	fx := newFixture()
	fx.balances.account = ledger.Account{ID: "acct-1", BalanceMinor: 123456, RatePerSMSMinor: 200, IsActive: true}
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodGet, "/v1/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if out["balance"] != "1234.56" || out["rate_per_sms"] != "2.00" || out["is_active"] != true {
		t.Fatalf("body = %v", out)
	}
}

func TestHandleIssueToken(t *testing.T) {
	fx := newFixture()
	r := fx.server.Router(identity("", ""))

	w, out := doJSON(t, r, http.MethodPost, "/v1/auth/token", gin.H{"api_key": "sk_live_1"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if out["token"] != "tok" || out["expires_in"] != float64(900) {
		t.Fatalf("body = %v", out)
	}
	if fx.tokens.role != rbac.RoleReseller {
		t.Fatalf("issued role = %q, want reseller", fx.tokens.role)
	}
}

func TestHandleIssueToken_InvalidKey(t *testing.T) {
	fx := newFixture()
	fx.keys.err = auth.ErrInvalidCredential
	r := fx.server.Router(identity("", ""))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/auth/token", gin.H{"api_key": "nope"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
}

func TestHandleProcessTopup_Approved(t *testing.T) {
	fx := newFixture()
	fx.topups.balance = 51000
	r := fx.server.Router(identity("admin-1", rbac.RoleAdmin))

	w, out := doJSON(t, r, http.MethodPost, "/v1/admin/topups/process", gin.H{
		"request_id": "req-1",
		"decision":   "approved",
		"account_id": "acct-1",
		"amount":     "500.00",
	})
	if w.Code != http.StatusOK || out["error"] != false {
		t.Fatalf("got %d %v", w.Code, out)
	}
	if out["new_balance"] != "510.00" {
		t.Fatalf("new_balance = %v", out["new_balance"])
	}
	if fx.topups.actor != "admin-1" {
		t.Fatalf("actor = %q", fx.topups.actor)
	}
	if fx.topups.req.AmountMinor != 50000 {
		t.Fatalf("amount minor = %d", fx.topups.req.AmountMinor)
	}
}

func TestHandleProcessTopup_RequiresAdmin(t *testing.T) {
	fx := newFixture()
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/admin/topups/process", gin.H{
		"request_id": "req-1", "decision": "approved", "account_id": "acct-1", "amount": "1.00",
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestHandleProcessTopup_InvalidDecision(t *testing.T) {
	fx := newFixture()
	fx.topups.err = topup.ErrInvalidDecision
	r := fx.server.Router(identity("admin-1", rbac.RoleAdmin))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/admin/topups/process", gin.H{
		"request_id": "req-1", "decision": "maybe", "account_id": "acct-1", "amount": "1.00",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleAdjustment_Credit(t *testing.T) {
	fx := newFixture()
	fx.balances.creditBalance = 70000
	r := fx.server.Router(identity("admin-1", rbac.RoleAdmin))

	w, out := doJSON(t, r, http.MethodPost, "/v1/admin/adjustments", gin.H{
		"account_id": "acct-1", "kind": "credit", "amount": "200.00", "reason": "goodwill",
	})
	if w.Code != http.StatusOK || out["error"] != false {
		t.Fatalf("got %d %v", w.Code, out)
	}
	if out["new_balance"] != "700.00" {
		t.Fatalf("new_balance = %v", out["new_balance"])
	}
	if fx.balances.lastReason != "goodwill" || fx.balances.lastActor != "admin-1" {
		t.Fatalf("reason/actor = %q/%q", fx.balances.lastReason, fx.balances.lastActor)
	}
}

func TestHandleAdjustment_DebitInsufficient(t *testing.T) {
	fx := newFixture()
	fx.balances.debitErr = ledger.ErrInsufficientBalance
	r := fx.server.Router(identity("admin-1", rbac.RoleAdmin))

	w, out := doJSON(t, r, http.MethodPost, "/v1/admin/adjustments", gin.H{
		"account_id": "acct-1", "kind": "debit", "amount": "200.00", "reason": "clawback",
	})
	if w.Code != http.StatusOK || out["error"] != true || out["message"] != "Insufficient balance" {
		t.Fatalf("got %d %v", w.Code, out)
	}
}

func TestHandleAdjustment_BadKind(t *testing.T) {
	fx := newFixture()
	r := fx.server.Router(identity("admin-1", rbac.RoleAdmin))

	w, _ := doJSON(t, r, http.MethodPost, "/v1/admin/adjustments", gin.H{
		"account_id": "acct-1", "kind": "transfer", "amount": "1.00", "reason": "x",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleNotifyTopup(t *testing.T) {
	fx := newFixture()
	r := fx.server.Router(identity("acct-1", rbac.RoleReseller))

	w, out := doJSON(t, r, http.MethodPost, "/v1/topups/notify", gin.H{"amount": "500.5"})
	if w.Code != http.StatusOK || out["error"] != false {
		t.Fatalf("got %d %v", w.Code, out)
	}
	if len(fx.notifier.calls) != 1 || fx.notifier.calls[0] != "acct-1:500.50" {
		t.Fatalf("notifier calls = %v", fx.notifier.calls)
	}
}

func TestHandleHealthz(t *testing.T) {
	fx := newFixture()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()
	fx.server.db = db

	r := fx.server.Router(identity("", ""))
	w, out := doJSON(t, r, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("got %d %v", w.Code, out)
	}
}
