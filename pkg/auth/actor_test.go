package auth

import (
	"testing"

	"github.com/google/uuid"
)

func TestActorRoundTrip(t *testing.T) {
	id := uuid.New()
	guest, err := GuestActor("Visitor@Example.com")
	if err != nil {
		t.Fatalf("guest actor: %v", err)
	}

	for _, actor := range []Actor{Anonymous(), UserActor(id), guest} {
		parsed, err := ParseActor(actor.String())
		if err != nil {
			t.Fatalf("parse %q: %v", actor.String(), err)
		}
		if !parsed.Equal(actor) {
			t.Fatalf("expected %q got %q", actor.String(), parsed.String())
		}
	}
	if guest.String() != "guest:visitor@example.com" {
		t.Fatalf("guest email should be normalized, got %q", guest.String())
	}
}

func TestActorKinds(t *testing.T) {
	if !Anonymous().IsAnonymous() || Anonymous().IsAuthenticated() {
		t.Fatalf("anonymous actor misclassified")
	}
	user := UserActor(uuid.New())
	if !user.IsAuthenticated() || user.IsGuest() || user.IsAnonymous() {
		t.Fatalf("user actor misclassified")
	}
	guest, _ := GuestActor("a@b.co")
	if !guest.IsGuest() || guest.IsAuthenticated() {
		t.Fatalf("guest actor misclassified")
	}
}

func TestParseActorRejectsGarbage(t *testing.T) {
	for _, raw := range []string{"user:not-a-uuid", "guest:nope", "admin:1"} {
		if _, err := ParseActor(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
