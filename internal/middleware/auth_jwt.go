package middleware

import (
	"errors"
	"net/http"
	"strings"

	"inventory/internal/config"
	"inventory/internal/domain/model"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const (
	CtxUserIDKey   = "user_id"   // string(uuid)
	CtxUserRoleKey = "user_role" // model.Role
)

// bearerAuth用のJWT検証ミドルウェア。
func AuthJWT(cfg config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			//Authorizationヘッダを取得
			authz := c.Request().Header.Get("Authorization")
			if authz == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//Bearer形式か確認してtokenを抜く
			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}
			rawToken := strings.TrimSpace(parts[1])
			if rawToken == "" {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//JWTをパースして検証する
			token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil || token == nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//claimsを取り出す
			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//user_id（uuid）
			userID, err := parseUserID(claims["sub"])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//roleを取り出す（USER/ADMIN）
			role, err := parseRole(claims["role"])
			if err != nil {
				return c.JSON(http.StatusUnauthorized, errorJSON("Not authorized to access this route"))
			}

			//contextへ保存
			c.Set(CtxUserIDKey, userID)
			c.Set(CtxUserRoleKey, role)

			return next(c)
		}
	}
}

// ActorFrom はAuthJWTが保存した認証済みユーザーを返す。
func ActorFrom(c echo.Context) (model.Actor, bool) {
	userID, ok := c.Get(CtxUserIDKey).(string)
	if !ok || userID == "" {
		return model.Actor{}, false
	}
	role, _ := c.Get(CtxUserRoleKey).(model.Role)
	return model.Actor{UserID: userID, Role: role}, true
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func errorJSON(msg string) errorResponse {
	return errorResponse{Success: false, Error: msg}
}

func parseUserID(v interface{}) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid sub")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func parseRole(v interface{}) (model.Role, error) {
	s, ok := v.(string)
	if !ok {
		return "", errors.New("invalid role")
	}
	switch role := model.Role(strings.ToUpper(s)); role {
	case model.RoleUser, model.RoleAdmin:
		return role, nil
	default:
		return "", errors.New("invalid role")
	}
}
