package password_test

import (
	"strings"
	"testing"

	"github.com/dropDatabas3/hellolink/internal/security/password"
)

func TestHashAndVerify(t *testing.T) {
	phc, err := password.Hash(password.Default, "correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$") {
		t.Fatalf("unexpected PHC prefix: %q", phc)
	}

	if !password.Verify("correct horse battery staple", phc) {
		t.Fatal("Verify rejected the original secret")
	}
	if password.Verify("wrong secret", phc) {
		t.Fatal("Verify accepted a wrong secret")
	}
}

func TestVerify_MalformedPHC(t *testing.T) {
	cases := []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=3,p=2$notbase64===$x",
		"$bcrypt$something",
	}
	for _, phc := range cases {
		if password.Verify("whatever", phc) {
			t.Errorf("Verify accepted malformed PHC %q", phc)
		}
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	a, _ := password.Hash(password.Default, "same input")
	b, _ := password.Hash(password.Default, "same input")
	if a == b {
		t.Fatal("two hashes of the same input are identical (salt not random?)")
	}
}
