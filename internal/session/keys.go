package session

// 定义与会话相关的Redis键名
const (
	// TokenKeyPrefix 是单个会话令牌的键前缀。
	// Key: session:token:<token>
	// Value: 用户ID，TTL与会话剩余有效期一致
	TokenKeyPrefix = "session:token:"
)

// tokenKey 拼出指定令牌的Redis键
func tokenKey(token string) string {
	return TokenKeyPrefix + token
}
