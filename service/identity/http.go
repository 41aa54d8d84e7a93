package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"PPGate/tools/errs"
)

type loginBody struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=6,max=64"`
}

type jsonResp struct {
	Code int         `json:"code"`
	Data interface{} `json:"data"`
}

// LoginHandler is the external authentication endpoint: it accepts a
// credential over HTTP and returns the bearer token that `base.auth`
// consumes on the websocket side.
func LoginHandler(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body loginBody
		if err := c.BindJSON(&body); err != nil {
			c.AbortWithStatusJSON(http.StatusOK, jsonResp{
				Code: errs.WrongBody, Data: err.Error(),
			})
			return
		}
		ident, token, err := auth.Login(c.Request.Context(), body.Username, body.Password)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, jsonResp{
				Code: errs.Code(err), Data: errs.Message(err),
			})
			return
		}
		c.JSON(http.StatusOK, jsonResp{
			Code: errs.Success,
			Data: gin.H{"token": token, "userId": ident.UserID, "username": ident.Username},
		})
	}
}

// LogoutHandler revokes the presented bearer token.
func LogoutHandler(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if len(token) > 7 && token[:7] == "Bearer " {
			token = token[7:]
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusOK, jsonResp{
				Code: errs.Unauthenticated, Data: "token not found",
			})
			return
		}
		if err := auth.Revoke(c.Request.Context(), token); err != nil {
			c.AbortWithStatusJSON(http.StatusOK, jsonResp{
				Code: errs.Code(err), Data: errs.Message(err),
			})
			return
		}
		c.JSON(http.StatusOK, jsonResp{Code: errs.Success, Data: "ok"})
	}
}
