package auth

import (
	"crypto/x509"
	"encoding/pem"
	"strings"
	"testing"
)

func encodePEM(t *testing.T, typ string, der []byte) string {
	t.Helper()
	return string(pem.EncodeToMemory(&pem.Block{Type: typ, Bytes: der}))
}

func TestParseKeyPairFormats(t *testing.T) {
	keys, other := keysForTest(t)

	pkcs8, err := x509.MarshalPKCS8PrivateKey(keys.Private)
	if err != nil {
		t.Fatalf("marshal pkcs8: %v", err)
	}
	pkix, err := x509.MarshalPKIXPublicKey(keys.Public)
	if err != nil {
		t.Fatalf("marshal pkix: %v", err)
	}

	cases := []struct {
		name    string
		priv    string
		pub     string
		wantErr bool
	}{
		{"pkcs1/pkcs1", encodePEM(t, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(keys.Private)), encodePEM(t, "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(keys.Public)), false},
		{"pkcs8/pkix", encodePEM(t, "PRIVATE KEY", pkcs8), encodePEM(t, "PUBLIC KEY", pkix), false},
		{"mismatched", encodePEM(t, "PRIVATE KEY", pkcs8), encodePEM(t, "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(other.Public)), true},
		{"garbage", "not a key", encodePEM(t, "PUBLIC KEY", pkix), true},
		{"wrong block", encodePEM(t, "CERTIFICATE", []byte{1, 2, 3}), encodePEM(t, "PUBLIC KEY", pkix), true},
		{"missing public", encodePEM(t, "PRIVATE KEY", pkcs8), "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kp, err := ParseKeyPair(" kid-1 ", tc.priv, tc.pub)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKeyPair: %v", err)
			}
			if kp.ID != "kid-1" {
				t.Fatalf("kid = %q", kp.ID)
			}
			if !kp.Public.Equal(keys.Public) {
				t.Fatal("parsed public key differs")
			}
		})
	}
}

func TestGenerateKeyPair(t *testing.T) {
	kp, err := GenerateKeyPair("ephemeral", 2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if kp.Private == nil || !strings.EqualFold(kp.ID, "ephemeral") || !kp.Private.PublicKey.Equal(kp.Public) {
		t.Fatalf("unexpected keypair: %+v", kp.ID)
	}
}
