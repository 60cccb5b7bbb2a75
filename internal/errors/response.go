package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorResponse 標準エラー応答
type ErrorResponse struct {
	Error   string `json:"error"`   // エラーコード (フロントエンドのマッピング用)
	Message string `json:"message"` // 利用者向けメッセージ (日本語)
}

// RespondWithError エラー応答ヘルパー
// statusCode: HTTPステータスコード
// errorCode: エラーコード定数 (codes.go 参照)
// message: 利用者に表示するメッセージ
func RespondWithError(c *gin.Context, statusCode int, errorCode string, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// よく使うエラー応答のショートカット

func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "ログインが必要です"
	}
	RespondWithError(c, http.StatusUnauthorized, AuthUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "アクセス権限がありません"
	}
	RespondWithError(c, http.StatusForbidden, AuthzForbidden, message)
}

func BadRequest(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusBadRequest, errorCode, message)
}

func NotFound(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusNotFound, errorCode, message)
}

func Conflict(c *gin.Context, errorCode string, message string) {
	RespondWithError(c, http.StatusConflict, errorCode, message)
}

func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "サーバーエラーが発生しました。しばらくしてから再度お試しください"
	}
	RespondWithError(c, http.StatusInternalServerError, InternalServerError, message)
}
