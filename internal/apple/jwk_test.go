package apple

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"testing"
)

func TestParseKeySet(t *testing.T) {
	t.Parallel()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())

	valid := fmt.Sprintf(`{"keys":[{"kty":"RSA","kid":"abc","use":"sig","alg":"RS256","n":"%s","e":"AQAB"}]}`, n)

	keys, err := parseKeySet([]byte(valid))
	if err != nil {
		t.Fatalf("parseKeySet() error = %v", err)
	}
	pub, ok := keys["abc"]
	if !ok {
		t.Fatal("expected key with kid abc")
	}
	if pub.N.Cmp(key.PublicKey.N) != 0 || pub.E != key.PublicKey.E {
		t.Error("parsed key does not match original")
	}
}

func TestParseKeySet_Malformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>502</html>"},
		{"empty set", `{"keys":[]}`},
		{"no usable keys", `{"keys":[{"kty":"EC","kid":"e1"}]}`},
		{"bad modulus", `{"keys":[{"kty":"RSA","kid":"k1","n":"!!!","e":"AQAB"}]}`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := parseKeySet([]byte(tt.body)); err == nil {
				t.Error("expected error for malformed key set")
			}
		})
	}
}
