package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sms-panel/internal/auth"
	"sms-panel/internal/dispatch"
	"sms-panel/internal/ledger"
	"sms-panel/internal/money"
	"sms-panel/internal/policy"
	"sms-panel/internal/pricing"
	"sms-panel/internal/rbac"
	"sms-panel/internal/topup"
	"sms-panel/pkg/logger"
)

// Business rejections answer 200 with the error flag set; resellers integrate
// against the flag, not the status code. Only authentication uses 401 and
// malformed requests 400.
func rejectJSON(c *gin.Context, message string) {
	c.JSON(http.StatusOK, gin.H{"error": true, "message": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": message})
}

func internalError(c *gin.Context, op string, err error) {
	logger.FromGin(c).Error(op+" failed", "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "Internal server error"})
}

type sendRequest struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

func (s *Server) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
		return
	}

	res, err := s.dispatcher.Send(c.Request.Context(), dispatch.SendRequest{
		AccountID:  accountID,
		Recipients: req.To,
		Body:       req.Text,
	})
	if err != nil {
		var v *policy.Violation
		switch {
		case errors.As(err, &v):
			rejectJSON(c, "Message contains blocked word: "+v.Term)
		case errors.Is(err, dispatch.ErrAccountInactive):
			rejectJSON(c, "Account is inactive")
		case errors.Is(err, pricing.ErrNoRecipients):
			rejectJSON(c, "No valid recipients provided")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			rejectJSON(c, "Insufficient balance")
		case errors.Is(err, ledger.ErrNotFound):
			rejectJSON(c, "Account not found")
		default:
			internalError(c, "send", err)
		}
		return
	}

	if !res.Accepted {
		rejectJSON(c, res.Message)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":       false,
		"message":     "SMS sent successfully",
		"cost":        money.FormatMinor(res.CostMinor),
		"new_balance": money.FormatMinor(res.BalanceMinor),
	})
}

func (s *Server) handleBalance(c *gin.Context) {
	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
		return
	}

	acc, err := s.balances.GetAccount(c.Request.Context(), accountID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			rejectJSON(c, "Account not found")
			return
		}
		internalError(c, "balance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":        false,
		"balance":      money.FormatMinor(acc.BalanceMinor),
		"rate_per_sms": money.FormatMinor(acc.RatePerSMSMinor),
		"is_active":    acc.IsActive,
	})
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

// handleIssueToken exchanges a valid API key for a short-lived bearer token.
// Admin tokens are minted out of band; this endpoint only grants reseller
// scope.
func (s *Server) handleIssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		badRequest(c, "api_key is required")
		return
	}

	accountID, err := s.keys.Resolve(c.Request.Context(), req.APIKey)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Invalid or inactive API key"})
		return
	}

	token, err := s.tokens.Issue(s.clock(), accountID, rbac.RoleReseller)
	if err != nil {
		internalError(c, "issue token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":      false,
		"token":      token,
		"expires_in": int64(s.tokenTTL.Seconds()),
	})
}

type processTopupRequest struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

func (s *Server) handleProcessTopup(c *gin.Context) {
	var req processTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	var amountMinor int64
	if req.Amount != "" {
		var err error
		amountMinor, err = money.ParseMinor(req.Amount)
		if err != nil {
			badRequest(c, "amount must be a decimal with at most two places")
			return
		}
	}

	actor, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
		return
	}

	balance, err := s.topups.Process(c.Request.Context(), topup.ProcessRequest{
		RequestID:   req.RequestID,
		Decision:    topup.Decision(req.Decision),
		AccountID:   req.AccountID,
		AmountMinor: amountMinor,
	}, actor)
	if err != nil {
		switch {
		case errors.Is(err, topup.ErrInvalidDecision), errors.Is(err, ledger.ErrInvalidArgument):
			badRequest(c, err.Error())
		case errors.Is(err, ledger.ErrNotFound):
			rejectJSON(c, "Account not found")
		default:
			internalError(c, "process topup", err)
		}
		return
	}

	resp := gin.H{"error": false, "message": "Top-up " + req.Decision}
	if topup.Decision(req.Decision) == topup.DecisionApproved {
		resp["new_balance"] = money.FormatMinor(balance)
	}
	c.JSON(http.StatusOK, resp)
}

type adjustmentRequest struct {
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Amount    string `json:"amount"`
	Reason    string `json:"reason"`
}

func (s *Server) handleAdjustment(c *gin.Context) {
	var req adjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil || amountMinor <= 0 {
		badRequest(c, "amount must be a positive decimal with at most two places")
		return
	}

	actor, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
		return
	}

	var balance int64
	switch ledger.AdjustmentKind(req.Kind) {
	case ledger.AdjustmentKindCredit:
		balance, _, err = s.balances.Credit(c.Request.Context(), req.AccountID, amountMinor, req.Reason, actor)
	case ledger.AdjustmentKindDebit:
		balance, _, err = s.balances.AdminDebit(c.Request.Context(), req.AccountID, amountMinor, req.Reason, actor)
	default:
		badRequest(c, "kind must be credit or debit")
		return
	}
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidArgument):
			badRequest(c, err.Error())
		case errors.Is(err, ledger.ErrNotFound):
			rejectJSON(c, "Account not found")
		case errors.Is(err, ledger.ErrInsufficientBalance):
			rejectJSON(c, "Insufficient balance")
		default:
			internalError(c, "adjustment", err)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"error":       false,
		"message":     "Adjustment applied",
		"new_balance": money.FormatMinor(balance),
	})
}

type notifyTopupRequest struct {
	Amount string `json:"amount"`
}

// handleNotifyTopup lets the reseller-facing frontend announce a freshly
// submitted top-up request. Delivery is best effort; the response never
// reflects notifier failures.
func (s *Server) handleNotifyTopup(c *gin.Context) {
	var req notifyTopupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil || amountMinor <= 0 {
		badRequest(c, "amount must be a positive decimal with at most two places")
		return
	}

	accountID, err := auth.AccountID(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": true, "message": "Unauthorized"})
		return
	}

	s.notifier.TopupSubmitted(c.Request.Context(), accountID, money.FormatMinor(amountMinor))
	c.JSON(http.StatusOK, gin.H{"error": false, "message": "Notification queued"})
}
