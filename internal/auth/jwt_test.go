package auth

import "testing"

func TestSeniorTokenRoundTrip(t *testing.T) {
	token, err := GenerateSeniorToken("user-42")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("user id = %q, want user-42", claims.UserID)
	}
	if claims.Role != "senior" {
		t.Errorf("role = %q, want senior", claims.Role)
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		t.Error("token must expire after it was issued")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := ValidateToken("not-a-token"); err == nil {
		t.Error("expected an error for a malformed token")
	}
}

func TestValidateRejectsTamperedToken(t *testing.T) {
	token, err := GenerateSeniorToken("user-42")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	tampered := token[:len(token)-2] + "xx"
	if _, err := ValidateToken(tampered); err == nil {
		t.Error("expected an error for a tampered signature")
	}
}
