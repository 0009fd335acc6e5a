package gateway

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// SignURI 按交易所要求对完整请求 URI 做 HMAC-SHA512 签名，
// 结果放入 apisign 头。
func SignURI(uri, secret string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(uri))
	return hex.EncodeToString(mac.Sum(nil))
}
