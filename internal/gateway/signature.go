package gateway

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"sort"
	"strings"

	"github.com/vam12375/muying-mall-sub003/internal/domain"
)

// RSAVerifier verifies RSA-SHA256 signatures over sorted form parameters,
// the scheme used by the gateway for both webhook and return callbacks.
type RSAVerifier struct {
	pub *rsa.PublicKey
}

func NewRSAVerifier(publicKeyPEM []byte) (*RSAVerifier, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, fmt.Errorf("gateway public key: no PEM block found")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("gateway public key parse error: %v", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("gateway public key is not RSA")
	}
	return &RSAVerifier{pub: rsaKey}, nil
}

func (v *RSAVerifier) Verify(params map[string]string) error {
	sign := params["sign"]
	if sign == "" {
		return fmt.Errorf("%w: missing sign parameter", domain.ErrSignatureInvalid)
	}

	sig, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return fmt.Errorf("%w: sign is not base64", domain.ErrSignatureInvalid)
	}

	digest := sha256.Sum256([]byte(CanonicalString(params)))
	if err := rsa.VerifyPKCS1v15(v.pub, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	return nil
}

// CanonicalString joins all parameters except sign and sign_type as
// k1=v1&k2=v2 with keys sorted ascending; empty values are skipped. This is
// the exact byte string the gateway signs.
func CanonicalString(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, val := range params {
		if k == "sign" || k == "sign_type" || val == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
