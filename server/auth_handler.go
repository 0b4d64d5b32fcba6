package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"OnAirFM/core/auth"
	"OnAirFM/logger"
	"OnAirFM/model"
	"OnAirFM/repository"
)

type contextKey string

const (
	ctxUserID   contextKey = "userID"
	ctxUsername contextKey = "username"
	ctxRole     contextKey = "role"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest represents the registration request body
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// AuthResponse 登录/注册成功的响应
type AuthResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// AuthHandler 账号与鉴权
type AuthHandler struct {
	users  repository.UserRepository
	tokens *auth.TokenIssuer
}

// NewAuthHandler 创建鉴权处理器
func NewAuthHandler(users repository.UserRepository, tokens *auth.TokenIssuer) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// LoginHandler handles user login requests
func (h *AuthHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("[Login] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required", nil)
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logger.Warn("[Login] 用户不存在", logger.String("username", req.Username))
			writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
			return
		}
		logger.Error("[Login] 查询用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	if !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] 密码验证失败", logger.String("username", req.Username))
		writeError(w, http.StatusUnauthorized, "Invalid username or password", nil)
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error", nil)
		return
	}

	logger.Info("[Login] 登录成功", logger.String("username", user.Username))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

// RegisterHandler creates a listener account
func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", nil)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required", nil)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process password", nil)
		return
	}

	// 注册只能得到 listener 角色，管理员和 DJ 通过 seed 命令创建
	user := &model.User{
		Username:     req.Username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hashedPassword,
		Role:         model.RoleListener,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			logger.Warn("[Register] 用户名已存在", logger.String("username", req.Username))
			writeError(w, http.StatusConflict, "Username already exists", nil)
			return
		}
		logger.Error("[Register] 创建用户失败", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Failed to create user", nil)
		return
	}

	token, err := h.tokens.GenerateToken(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate token", nil)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

// AuthMiddleware checks for a valid JWT in the Authorization header or the
// "token" query parameter
func (h *AuthHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tokenString string
		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
				return
			}
			tokenString = parts[1]
		}
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required", nil)
			return
		}

		claims, err := h.tokens.ParseToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.UserID)
		ctx = context.WithValue(ctx, ctxUsername, claims.Username)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// RequireRole rejects callers whose role is not listed. Must run after AuthMiddleware.
func RequireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			role, _ := r.Context().Value(ctxRole).(string)
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			username, _ := r.Context().Value(ctxUsername).(string)
			logger.Warn("access denied", logger.String("username", username), logger.String("role", role), logger.String("path", r.URL.Path))
			writeError(w, http.StatusForbidden, "Access denied", nil)
		}
	}
}

// Protect wraps a handler with authentication and a role check.
func (h *AuthHandler) Protect(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return h.AuthMiddleware(RequireRole(roles...)(next))
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (uint64, error) {
	userID, ok := ctx.Value(ctxUserID).(uint64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value(ctxUsername).(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
