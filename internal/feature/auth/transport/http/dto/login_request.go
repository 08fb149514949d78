package dto

// LoginReq は/api/auth/loginエンドポイントのリクエストボディを表します。
type LoginReq struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginRes はログイン成功時のレスポンスボディです。
type LoginRes struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}
