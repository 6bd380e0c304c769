package middleware

import (
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"

	"github.com/lumichat/credit/model"
)

// userContextKey stores the authenticated user in the gin context.
const userContextKey = "credit/user"

// GetUser returns the user placed in the context by UserAuth.
func GetUser(c *gin.Context) *model.User {
	user, _ := c.MustGet(userContextKey).(*model.User)
	return user
}

func authByAccessToken(c *gin.Context) (*model.User, error) {
	token := c.Request.Header.Get("Authorization")
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, errors.New("access token is required")
	}
	user, err := model.GetUserByAccessToken(token)
	if err != nil {
		return nil, errors.New("invalid access token")
	}
	return user, nil
}

// UserAuth requires a valid access token and stores the user in the context.
func UserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authByAccessToken(c)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

// AdminAuth additionally requires the admin role.
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := authByAccessToken(c)
		if err != nil {
			AbortWithError(c, http.StatusUnauthorized, err)
			return
		}
		if user.Role < model.RoleAdminUser {
			AbortWithError(c, http.StatusForbidden, errors.New("admin privilege required"))
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}
