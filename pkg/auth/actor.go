package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
)

const (
	actorAnonymous = "anonymous"
	actorUserPref  = "user:"
	actorGuestPref = "guest:"
)

// Actor is who performs an action: an anonymous visitor, an authenticated
// platform user, or a guest identified only by a collected email.
type Actor struct {
	UserID *uuid.UUID
	Guest  string
}

// Anonymous returns the actor for an unidentified visitor.
func Anonymous() Actor {
	return Actor{}
}

// UserActor returns the actor for an authenticated platform user.
func UserActor(id uuid.UUID) Actor {
	return Actor{UserID: &id}
}

// GuestActor builds a guest surrogate from a collected email address.
func GuestActor(email string) (Actor, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return Actor{}, fmt.Errorf("invalid guest email: %w", err)
	}
	return Actor{Guest: strings.ToLower(addr.Address)}, nil
}

// ParseActor is the inverse of Actor.String.
func ParseActor(raw string) (Actor, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == actorAnonymous || raw == "":
		return Anonymous(), nil
	case strings.HasPrefix(raw, actorUserPref):
		id, err := uuid.Parse(strings.TrimPrefix(raw, actorUserPref))
		if err != nil {
			return Actor{}, fmt.Errorf("invalid user actor %q: %w", raw, err)
		}
		return UserActor(id), nil
	case strings.HasPrefix(raw, actorGuestPref):
		return GuestActor(strings.TrimPrefix(raw, actorGuestPref))
	default:
		return Actor{}, fmt.Errorf("unknown actor %q", raw)
	}
}

func (a Actor) IsAnonymous() bool {
	return a.UserID == nil && a.Guest == ""
}

func (a Actor) IsAuthenticated() bool {
	return a.UserID != nil
}

func (a Actor) IsGuest() bool {
	return a.UserID == nil && a.Guest != ""
}

func (a Actor) String() string {
	switch {
	case a.UserID != nil:
		return actorUserPref + a.UserID.String()
	case a.Guest != "":
		return actorGuestPref + a.Guest
	default:
		return actorAnonymous
	}
}

// Equal compares actors by their canonical form.
func (a Actor) Equal(other Actor) bool {
	return a.String() == other.String()
}
