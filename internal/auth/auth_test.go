package auth

import (
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := NewManager("test-secret")
	tok, err := m.Issue("rider1", models.RoleRider, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	id, err := m.Verify(tok)
	if err != nil {
		t.Fatal(err)
	}
	if id.ID != "rider1" || id.Role != models.RoleRider {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	tok, err := NewManager("secret-a").Issue("d1", models.RoleDriver, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewManager("secret-b").Verify(tok); err == nil {
		t.Fatal("expected verification failure")
	}
}

func TestVerifyExpired(t *testing.T) {
	m := NewManager("test-secret")
	tok, err := m.Issue("d1", models.RoleDriver, -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(tok); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestVerifyUnknownRole(t *testing.T) {
	m := NewManager("test-secret")
	tok, err := m.Issue("x1", models.Role("admin"), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Verify(tok); err == nil {
		t.Fatal("expected unknown role to fail")
	}
}
