package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/MarcoPoloResearchLab/docvault/internal/auth"
	"github.com/MarcoPoloResearchLab/docvault/internal/device"
	"github.com/MarcoPoloResearchLab/docvault/internal/ledger"
	"github.com/MarcoPoloResearchLab/docvault/internal/profiles"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Key      string `json:"key" binding:"required,max=256"`
	DeviceID string `json:"device_id" binding:"required,max=64"`
}

type loginResponsePayload struct {
	AccessToken string         `json:"access_token"`
	ExpiresIn   int64          `json:"expires_in"`
	TokenType   string         `json:"token_type"`
	Account     accountPayload `json:"account"`
}

type accountPayload struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	Balance     int64    `json:"balance"`
	Library     []string `json:"library"`
	DeviceID    string   `json:"device_id"`
}

func newAccountPayload(account ledger.Account) accountPayload {
	library := append([]string{}, account.Library...)
	return accountPayload{
		ID:          account.ID,
		DisplayName: account.DisplayName,
		Balance:     account.Balance,
		Library:     library,
		DeviceID:    account.BoundDevice.String(),
	}
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidRequest})
		return
	}
	deviceID, err := device.NewID(request.DeviceID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorCodeInvalidDevice})
		return
	}
	limiterKey := deviceID.String()

	if err := h.limiter.Check(limiterKey); err != nil {
		var locked *profiles.LockedError
		retryAfter := int64(0)
		if errors.As(err, &locked) {
			retryAfter = int64(math.Ceil(locked.RetryAfter.Seconds()))
		}
		c.Header("Retry-After", strconv.FormatInt(retryAfter, 10))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "login_locked", "retry_after_s": retryAfter})
		return
	}

	profile, err := h.profiles.Resolve(c.Request.Context(), request.Key)
	if err != nil {
		if errors.Is(err, profiles.ErrUnknownCredential) || errors.Is(err, profiles.ErrInvalidCredential) {
			locked := h.limiter.Fail(limiterKey)
			h.logger.Info("login rejected",
				zap.String("device_id", limiterKey),
				zap.Bool("locked", locked))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credential"})
			return
		}
		h.writeError(c, "auth.login", err)
		return
	}
	h.limiter.Reset(limiterKey)

	opened, err := h.sessions.Open(c.Request.Context(), profile.Account(deviceID))
	if err != nil {
		h.writeError(c, "auth.login", err)
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), auth.SessionClaims{
		SessionID: opened.ID,
		AccountID: opened.Account.ID,
		DeviceID:  deviceID.String(),
	})
	if err != nil {
		h.sessions.Close(opened.ID)
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	h.logger.Info("login succeeded",
		zap.String("account_id", opened.Account.ID),
		zap.String("device_id", deviceID.String()))
	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Account:     newAccountPayload(opened.Account),
	})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	current, ok := h.currentSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, newAccountPayload(current.Account))
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	h.sessions.Close(c.GetString(sessionIDContextKey))
	c.Status(http.StatusNoContent)
}
