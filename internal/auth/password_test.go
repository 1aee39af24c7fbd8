// ABOUTME: Tests for argon2id password hashing and legacy bcrypt verification
// ABOUTME: Uses cheap cost parameters so the suite stays fast

package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

// fastParams keeps hashing cheap in tests.
var fastParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestArgon2Hasher_HashVerify(t *testing.T) {
	h := NewArgon2Hasher(fastParams)

	encoded, err := h.Hash("s3cret")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("Hash() = %q, unexpected prefix", encoded)
	}
	if strings.Contains(encoded, "s3cret") {
		t.Error("Hash() output contains the plaintext")
	}
	if !h.Verify("s3cret", encoded) {
		t.Error("Verify() = false for correct password")
	}
	if h.Verify("S3cret", encoded) {
		t.Error("Verify() = true for wrong password")
	}
}

func TestArgon2Hasher_SaltedHashes(t *testing.T) {
	h := NewArgon2Hasher(fastParams)

	a, _ := h.Hash("same")
	b, _ := h.Hash("same")
	if a == b {
		t.Error("two hashes of the same password are identical")
	}
	if !h.Verify("same", a) || !h.Verify("same", b) {
		t.Error("Verify() failed for a salted hash")
	}
}

func TestArgon2Hasher_VerifyMalformed(t *testing.T) {
	h := NewArgon2Hasher(fastParams)

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=0,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$a2V5",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA",
	} {
		if h.Verify("anything", encoded) {
			t.Errorf("Verify(%q) = true, want false", encoded)
		}
	}
}

func TestArgon2Hasher_VerifiesBcrypt(t *testing.T) {
	h := NewArgon2Hasher(fastParams)

	legacy, err := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt.GenerateFromPassword() error = %v", err)
	}

	if !h.Verify("old-pass", string(legacy)) {
		t.Error("Verify() = false for correct bcrypt password")
	}
	if h.Verify("wrong", string(legacy)) {
		t.Error("Verify() = true for wrong bcrypt password")
	}
	if !h.NeedsRehash(string(legacy)) {
		t.Error("NeedsRehash() = false for bcrypt hash")
	}
}

func TestArgon2Hasher_NeedsRehash(t *testing.T) {
	h := NewArgon2Hasher(fastParams)
	current, _ := h.Hash("pw")

	if h.NeedsRehash(current) {
		t.Error("NeedsRehash() = true for hash with current params")
	}

	stronger := NewArgon2Hasher(Argon2Params{Memory: 2048, Iterations: 2, Parallelism: 1})
	if !stronger.NeedsRehash(current) {
		t.Error("NeedsRehash() = false after params changed")
	}
	if !stronger.Verify("pw", current) {
		t.Error("Verify() should accept hashes made with other params")
	}
}

func TestNewArgon2Hasher_Defaults(t *testing.T) {
	h := NewArgon2Hasher(Argon2Params{})
	if h.params != DefaultArgon2Params {
		t.Errorf("params = %+v, want %+v", h.params, DefaultArgon2Params)
	}
}
