package aster

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// signParams builds the canonical "k=v&k=v" string (keys sorted) and its
// HMAC-SHA256 signature. The exact same string must go on the wire: any
// re-encoding breaks the signature.
func signParams(secret string, params map[string]string) (paramStr, signature string) {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	paramStr = strings.Join(parts, "&")

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(paramStr))
	return paramStr, hex.EncodeToString(mac.Sum(nil))
}
