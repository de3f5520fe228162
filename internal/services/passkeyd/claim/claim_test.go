package claim

import (
	"reflect"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/passkeyd/internal/platform/errors"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func sampleClaim() Claim {
	issued := time.Unix(1_700_000_000, 0).UTC()
	return Claim{
		ID:        "chal-1",
		Subject:   "alice",
		Audience:  "app-a",
		IssuedAt:  issued,
		ExpiresAt: issued.Add(5 * time.Minute),
		Extra:     map[string]string{ExtraKind: KindRegistration},
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	want := sampleClaim()
	token, err := Sign(testSecret, want)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if strings.Count(token, ".") != 2 {
		t.Fatalf("token = %q, want three segments", token)
	}
	if strings.Contains(token, "=") {
		t.Fatalf("token = %q, want no padding", token)
	}
	got, err := Verify(testSecret, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("claim = %+v, want %+v", got, want)
	}
	if got.Kind() != KindRegistration {
		t.Fatalf("kind = %q, want %q", got.Kind(), KindRegistration)
	}
}

func TestSignTruncatesTimesToSeconds(t *testing.T) {
	c := sampleClaim()
	c.IssuedAt = c.IssuedAt.Add(999 * time.Millisecond)
	c.ExpiresAt = c.ExpiresAt.Add(123456789 * time.Nanosecond)
	token, err := Sign(testSecret, c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := Verify(testSecret, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if want := c.IssuedAt.Truncate(time.Second); !got.IssuedAt.Equal(want) {
		t.Fatalf("issued at = %v, want %v", got.IssuedAt, want)
	}
	if want := c.ExpiresAt.Truncate(time.Second); !got.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", got.ExpiresAt, want)
	}
	if err := Validate(got, "app-a", got.ExpiresAt.Add(-time.Nanosecond)); err != nil {
		t.Fatalf("validate just before truncated expiry: %v", err)
	}
	if err := Validate(got, "app-a", c.ExpiresAt); apperrors.GetCode(err) != apperrors.CodeClaimExpired {
		t.Fatalf("validate at original expiry = %v, want %s", err, apperrors.CodeClaimExpired)
	}
}

func TestVerifyRejectsEverySingleCharacterMutation(t *testing.T) {
	token, err := Sign(testSecret, sampleClaim())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_."
	for i := range token {
		for _, r := range []byte{alphabet[(strings.IndexByte(alphabet, token[i])+1)%len(alphabet)], 'A', '_'} {
			if r == token[i] {
				continue
			}
			mutated := token[:i] + string(r) + token[i+1:]
			_, err := Verify(testSecret, mutated)
			if err == nil {
				t.Fatalf("mutation at %d (%q -> %q) verified", i, token[i], r)
			}
			if code := apperrors.GetCode(err); code != apperrors.CodeClaimInvalid {
				t.Fatalf("mutation at %d code = %s, want %s", i, code, apperrors.CodeClaimInvalid)
			}
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	token, err := Sign(testSecret, sampleClaim())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	_, err = Verify([]byte("another-secret"), token)
	if code := apperrors.GetCode(err); code != apperrors.CodeClaimInvalid {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeClaimInvalid)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	_, err := Verify(testSecret, "  ")
	if code := apperrors.GetCode(err); code != apperrors.CodeClaimInvalid {
		t.Fatalf("code = %s, want %s", code, apperrors.CodeClaimInvalid)
	}
}

func TestSignRequiresFields(t *testing.T) {
	c := sampleClaim()
	if _, err := Sign(nil, c); err == nil {
		t.Fatal("expected error for empty secret")
	}
	c.ID = ""
	if _, err := Sign(testSecret, c); err == nil {
		t.Fatal("expected error for empty id")
	}
	c = sampleClaim()
	c.ExpiresAt = time.Time{}
	if _, err := Sign(testSecret, c); err == nil {
		t.Fatal("expected error for missing expiry")
	}
}

func TestValidate(t *testing.T) {
	c := sampleClaim()
	tests := []struct {
		name string
		app  string
		now  time.Time
		want apperrors.Code
	}{
		{name: "valid", app: "app-a", now: c.ExpiresAt.Add(-time.Second)},
		{name: "expired at boundary", app: "app-a", now: c.ExpiresAt, want: apperrors.CodeClaimExpired},
		{name: "expired after", app: "app-a", now: c.ExpiresAt.Add(time.Minute), want: apperrors.CodeClaimExpired},
		{name: "audience", app: "app-b", now: c.IssuedAt, want: apperrors.CodeClaimAudienceMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(c, tt.app, tt.now)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("validate: %v", err)
				}
				return
			}
			if code := apperrors.GetCode(err); code != tt.want {
				t.Fatalf("code = %s, want %s", code, tt.want)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	c := sampleClaim()
	token, err := Sign(testSecret, c)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	got, err := Decode(testSecret, token, "app-a", c.IssuedAt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("id = %q, want %q", got.ID, c.ID)
	}
	if _, err := Decode(testSecret, token, "app-b", c.IssuedAt); !apperrors.HasCode(err, apperrors.CodeClaimAudienceMismatch) {
		t.Fatalf("err = %v, want audience mismatch", err)
	}
}
