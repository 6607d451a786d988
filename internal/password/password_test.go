package password

import (
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	stored, err := Hash("secret123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		t.Fatalf("expected salt$hash format, got %q", stored)
	}
	if len(parts[0]) != SaltLength*2 {
		t.Errorf("expected %d hex chars of salt, got %d", SaltLength*2, len(parts[0]))
	}
	if len(parts[1]) != KeyLength*2 {
		t.Errorf("expected %d hex chars of key, got %d", KeyLength*2, len(parts[1]))
	}

	if !Verify(stored, "secret123") {
		t.Error("expected correct password to verify")
	}
	if Verify(stored, "wrong") {
		t.Error("expected wrong password to fail")
	}
}

func TestHashUsesFreshSalt(t *testing.T) {
	a, _ := Hash("same")
	b, _ := Hash("same")
	if a == b {
		t.Error("expected two hashes of the same password to differ")
	}
}

func TestVerifyKnownVector(t *testing.T) {
	salt := []byte("0123456789abcdef")
	stored := hashWithSalt("pw", salt)
	if !strings.HasPrefix(stored, "30313233343536373839616263646566$") {
		t.Errorf("unexpected salt encoding: %q", stored)
	}
	if !Verify(stored, "pw") {
		t.Error("expected known vector to verify")
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, stored := range []string{"", "nodollar", "zz$abcd", "abcd$zz", "a$b$c", "abcd$abcd"} {
		if Verify(stored, "anything") {
			t.Errorf("expected malformed %q not to verify", stored)
		}
	}
}
