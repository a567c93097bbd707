package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// tokenByteLength 是会话令牌的原始字节长度。
// 32字节 = 256位熵，远超暴力猜测的可行范围。
const tokenByteLength = 32

// New 生成一个密码学安全的、不可猜测的会话令牌。
// 返回的是原始随机字节的Base64URL编码字符串（无填充）。
func New() (string, error) {
	raw := make([]byte, tokenByteLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("无法生成安全的会话令牌: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Equal 对两个令牌进行时间恒定的比较，防止时序攻击。
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
