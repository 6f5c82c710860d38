package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs-labo46/storefront/internal/config"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // int64
	CtxUserRoleKey = "user_role" // Role
)

// Role はアクセストークンの role クレーム。
type Role string

const (
	RoleUser  Role = "USER"  // 在庫・支払いの参照と自分の注文
	RoleAdmin Role = "ADMIN" // 在庫の設定、注文・監査ログの管理
)

func (r Role) valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// AccessClaims は認証サービスが発行するトークンの中身。
// sub は発行元によって数値のことも文字列のこともある。
type AccessClaims struct {
	jwt.RegisteredClaims
	Sub  json.Number `json:"sub"`
	Role Role        `json:"role"`
}

var errInvalidClaims = errors.New("invalid claims")

// HS256 だけを受け付ける。exp/nbf は RegisteredClaims が検証する。
func parseAccessToken(secret, raw string) (int64, Role, error) {
	var claims AccessClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, "", err
	}

	userID, err := claims.Sub.Int64()
	if err != nil || userID <= 0 {
		return 0, "", errInvalidClaims
	}
	if !claims.Role.valid() {
		return 0, "", errInvalidClaims
	}
	return userID, claims.Role, nil
}

// "Bearer <token>" からトークンを抜く
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// bearerAuth用のJWT検証ミドルウェア。
// トークンの発行は外部（認証サービス）で行う。ここでは検証だけ。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			userID, role, err := parseAccessToken(cfg.JWTSecret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("unauthorized"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Error: msg}
}
