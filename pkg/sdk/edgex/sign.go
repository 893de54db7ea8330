package edgex

import (
	"fmt"
	"time"
)

// Signer produces the Stark ECDSA signature edgeX expects on private
// endpoints. The hash input is timestamp + method + path + sorted params;
// the signature is r||s hex without the public key.
//
// The concrete curve implementation is injected so the client stays free
// of crypto dependencies and tests can stub it out.
type Signer interface {
	Sign(message string) (string, error)
}

// AuthHeaders builds the private-endpoint headers for one request.
func AuthHeaders(signer Signer, method, path, paramsString string) (map[string]string, error) {
	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	sig, err := signer.Sign(timestamp + method + path + paramsString)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"X-edgeX-Api-Timestamp": timestamp,
		"X-edgeX-Api-Signature": sig,
	}, nil
}
