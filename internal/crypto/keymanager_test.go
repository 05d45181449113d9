package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "correct horse")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}

	got, err := DecryptKey(blob, "correct horse")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Fatalf("decrypted key = %s, want %s", got, testKeyHex)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("decryption with wrong password succeeded")
	}
}

func TestEncryptRejectsBadKeys(t *testing.T) {
	if _, err := EncryptKey("nothex", "pw"); err == nil {
		t.Fatal("non-hex key accepted")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Fatal("short key accepted")
	}
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Fatal("empty password accepted")
	}
}

func TestLoadKeyResolutionOrder(t *testing.T) {
	// Raw key wins.
	k, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	if err != nil || k != testKeyHex {
		t.Fatalf("LoadKey raw = %q, %v", k, err)
	}

	// Encrypted file fallback.
	blob, err := EncryptKey(testKeyHex, "pw")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	k, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil || k != testKeyHex {
		t.Fatalf("LoadKey file = %q, %v", k, err)
	}

	// Nothing configured.
	if _, err := LoadKey(KeyConfig{}); err == nil || !strings.Contains(err.Error(), "no private key source") {
		t.Fatalf("LoadKey empty = %v", err)
	}
}

func TestLoadKeyRejectsShortRawKey(t *testing.T) {
	if _, err := LoadKey(KeyConfig{RawPrivateKey: "0xabcd"}); err == nil {
		t.Fatal("short raw key accepted")
	}
}
