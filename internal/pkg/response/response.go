// Package response writes the {"success", "data" | "error"} JSON envelope.
package response

import "github.com/gin-gonic/gin"

// Problem is an error already translated to its HTTP form.
type Problem struct {
	Status  int
	Code    string
	Message string
}

func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, gin.H{
		"success": true,
		"data":    data,
	})
}

func Error(c *gin.Context, statusCode int, code string, message string) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func ErrorWithDetails(c *gin.Context, statusCode int, code string, message string, details any) {
	c.JSON(statusCode, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

// Fail writes p and records it on the context for the request logger.
func Fail(c *gin.Context, p Problem) {
	c.Set("error_code", p.Code)
	Error(c, p.Status, p.Code, p.Message)
}

// Abort writes an error envelope and stops the handler chain.
func Abort(c *gin.Context, statusCode int, code string, message string) {
	Fail(c, Problem{Status: statusCode, Code: code, Message: message})
	c.Abort()
}
