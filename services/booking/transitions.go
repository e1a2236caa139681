package booking

import (
	"fmt"

	"gigbook/models"
)

// Role is the party a transition belongs to.
type Role int

const (
	RoleClient Role = iota + 1
	RoleProvider
	RoleEither
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleProvider:
		return "provider"
	case RoleEither:
		return "client or provider"
	}
	return "unknown"
}

// allows reports whether actorID holds r on b.
func (r Role) allows(b *models.Booking, actorID string) bool {
	switch r {
	case RoleClient:
		return actorID == b.ClientID
	case RoleProvider:
		return actorID == b.ServiceProviderID
	case RoleEither:
		return b.IsParty(actorID)
	}
	return false
}

// Effect is the side effect performed with a transition.
type Effect int

const (
	EffectNone Effect = iota
	EffectPropose
	EffectAuthorize
	EffectCapture
	// EffectRelease cancels a hold or refunds a capture when an intent exists.
	EffectRelease
	// EffectRefund is EffectRelease but requires an intent.
	EffectRefund
)

func (e Effect) financial() bool {
	return e == EffectAuthorize || e == EffectCapture || e == EffectRelease || e == EffectRefund
}

type Rule struct {
	From   []models.BookingStatus
	To     models.BookingStatus
	Actor  Role
	Effect Effect
}

func (r Rule) allowsFrom(s models.BookingStatus) bool {
	for _, f := range r.From {
		if f == s {
			return true
		}
	}
	return false
}

// A disputed booking leaves only through refunded.
var cancellable = []models.BookingStatus{
	models.StatusPending, models.StatusPendingBuyer, models.StatusConfirmed,
	models.StatusInProgress, models.StatusAwaitingReview,
}

// Rules is the complete transition table. A status change not described here is rejected.
var Rules = []Rule{
	{From: []models.BookingStatus{models.StatusPending}, To: models.StatusPendingBuyer, Actor: RoleProvider, Effect: EffectPropose},
	{From: []models.BookingStatus{models.StatusPending}, To: models.StatusDeclined, Actor: RoleProvider},
	{From: []models.BookingStatus{models.StatusPendingBuyer}, To: models.StatusConfirmed, Actor: RoleClient, Effect: EffectAuthorize},
	{From: []models.BookingStatus{models.StatusConfirmed}, To: models.StatusInProgress, Actor: RoleProvider},
	{From: []models.BookingStatus{models.StatusConfirmed, models.StatusInProgress}, To: models.StatusAwaitingReview, Actor: RoleProvider},
	{From: []models.BookingStatus{models.StatusAwaitingReview}, To: models.StatusCompleted, Actor: RoleClient, Effect: EffectCapture},
	{From: []models.BookingStatus{models.StatusAwaitingReview}, To: models.StatusDisputed, Actor: RoleClient},
	{From: cancellable, To: models.StatusCancelled, Actor: RoleEither, Effect: EffectRelease},
	{
		From:   []models.BookingStatus{models.StatusConfirmed, models.StatusInProgress, models.StatusAwaitingReview, models.StatusDisputed},
		To:     models.StatusRefunded,
		Actor:  RoleEither,
		Effect: EffectRefund,
	},
}

// RuleFor returns the rule moving a booking from one status to another.
func RuleFor(from, to models.BookingStatus) (Rule, bool) {
	for _, r := range Rules {
		if r.To == to && r.allowsFrom(from) {
			return r, true
		}
	}
	return Rule{}, false
}

func CanTransition(from, to models.BookingStatus) bool {
	_, ok := RuleFor(from, to)
	return ok
}

// AllowedTargets lists the statuses reachable from s in one step.
func AllowedTargets(s models.BookingStatus) []models.BookingStatus {
	var out []models.BookingStatus
	for _, r := range Rules {
		if r.allowsFrom(s) {
			out = append(out, r.To)
		}
	}
	return out
}

// AllowedTargetsFor narrows AllowedTargets to those actorID may trigger on b.
func AllowedTargetsFor(b *models.Booking, actorID string) []models.BookingStatus {
	var out []models.BookingStatus
	for _, r := range Rules {
		if r.allowsFrom(b.Status) && r.Actor.allows(b, actorID) {
			out = append(out, r.To)
		}
	}
	return out
}

func transitionLabel(from, to models.BookingStatus) string {
	return fmt.Sprintf("%s->%s", from, to)
}
