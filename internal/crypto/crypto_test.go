package icrypto

import (
	"bytes"
	"testing"
)

func TestAAD(t *testing.T) {
	ns := "https://auth.example.com"
	ver := 1

	aad1 := AADCredential(ns, "accessToken", ver)
	aad2 := AADCredential(ns, "accessToken", ver)

	if !bytes.Equal(aad1, aad2) {
		t.Error("AADCredential should be deterministic")
	}

	aad3 := AADCredential(ns, "refreshToken", ver)
	if bytes.Equal(aad1, aad3) {
		t.Error("AADCredential should be different for different record ids")
	}

	aad4 := AADCredential("https://other.example.com", "accessToken", ver)
	if bytes.Equal(aad1, aad4) {
		t.Error("AADCredential should be different for different namespaces")
	}

	// Length prefixes keep the split point unambiguous.
	a := AADCredential("a:b", "c", ver)
	b := AADCredential("a", "b:c", ver)
	if bytes.Equal(a, b) {
		t.Error("AADCredential must not collide across the namespace/id boundary")
	}

	if bytes.Equal(AADRecordKey(ns, 1), AADRecordKey(ns, 2)) {
		t.Error("AADRecordKey should depend on the version")
	}
	if bytes.Equal(AADRecordKey(ns, 1), AADCredential(ns, "", 1)) {
		t.Error("record key and credential AAD must differ")
	}
}

func TestNamespaceKeys(t *testing.T) {
	wk := []byte("wk-0123456789-0123456789-0123456")
	ns := "https://auth.example.com"

	key1, err := DeriveNamespaceKey(wk, ns)
	if err != nil {
		t.Fatalf("DeriveNamespaceKey failed: %v", err)
	}
	if len(key1) != 32 {
		t.Errorf("expected 32-byte key, got %d", len(key1))
	}

	key2, _ := DeriveNamespaceKey(wk, ns)
	if !bytes.Equal(key1, key2) {
		t.Error("DeriveNamespaceKey should be deterministic")
	}

	key3, _ := DeriveNamespaceKey(wk, "https://other.example.com")
	if bytes.Equal(key1, key3) {
		t.Error("DeriveNamespaceKey should be different for different namespaces")
	}
}
