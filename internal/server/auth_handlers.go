package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/idcards/internal/auth"
	"github.com/MarcoPoloResearchLab/idcards/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountPayload struct {
	UserID      string     `json:"userId"`
	Email       string     `json:"email"`
	DisplayName string     `json:"displayName"`
	Role        users.Role `json:"role"`
}

type sessionResponsePayload struct {
	Account   accountPayload `json:"account"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request users.Registration
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	account, err := h.users.Register(c.Request.Context(), request)
	if err != nil {
		h.respondError(c, err, "register_failed")
		return
	}
	h.startSession(c, http.StatusCreated, account)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	account, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("email", request.Email), zap.Error(err))
		h.respondError(c, err, "login_failed")
		return
	}
	h.startSession(c, http.StatusOK, account)
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), "", -1, "/", "", h.secureCookies, true)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	account, err := h.users.Get(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.respondError(c, err, "account_lookup_failed")
		return
	}
	c.JSON(http.StatusOK, toAccountPayload(account))
}

func (h *httpHandler) startSession(c *gin.Context, status int, account users.Account) {
	token, expiresAt, err := h.issuer.IssueSessionToken(c.Request.Context(), auth.Principal{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Roles:       []string{string(account.Role)},
	})
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("user_id", account.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	maxAge := int(time.Until(expiresAt).Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.sessions.CookieName(), token, maxAge, "/", "", h.secureCookies, true)
	c.JSON(status, sessionResponsePayload{Account: toAccountPayload(account), ExpiresAt: expiresAt})
}

func toAccountPayload(account users.Account) accountPayload {
	return accountPayload{
		UserID:      account.UserID,
		Email:       account.Email,
		DisplayName: account.DisplayName,
		Role:        account.Role,
	}
}
