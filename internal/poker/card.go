package poker

import (
	"errors"
	"fmt"
	"strings"
)

// Card is a planning poker card label.
type Card string

// Default card labels.
const (
	Coffee     Card = "☕"
	One        Card = "1"
	Two        Card = "2"
	Three      Card = "3"
	Five       Card = "5"
	Eight      Card = "8"
	Thirteen   Card = "13"
	TwentyOne  Card = "21"
	ThirtyFour Card = "34"
	FiftyFive  Card = "55"
	EightyNine Card = "89"
	Unknown    Card = "?"
)

// DefaultDeck is the Fibonacci deck with the coffee and unknown markers.
var DefaultDeck = []Card{
	Coffee, One, Two, Three, Five, Eight, Thirteen,
	TwentyOne, ThirtyFour, FiftyFive, EightyNine, Unknown,
}

// DefaultDeckLabels returns DefaultDeck as plain strings.
func DefaultDeckLabels() []string {
	labels := make([]string, len(DefaultDeck))
	for i, c := range DefaultDeck {
		labels[i] = string(c)
	}
	return labels
}

// Deck is an ordered, duplicate-free set of card labels.
type Deck struct {
	cards []Card
	index map[Card]struct{}
}

// NewDeck builds a Deck from the given labels, preserving their order.
//
// Precondition: labels must be non-empty, non-blank and unique.
// Postcondition: Returns a Deck or a non-nil error describing every violation.
func NewDeck(labels []string) (Deck, error) {
	if len(labels) == 0 {
		return Deck{}, errors.New("deck must contain at least one card")
	}

	d := Deck{
		cards: make([]Card, 0, len(labels)),
		index: make(map[Card]struct{}, len(labels)),
	}
	var errs []string
	for i, label := range labels {
		if strings.TrimSpace(label) == "" {
			errs = append(errs, fmt.Sprintf("card %d is blank", i))
			continue
		}
		c := Card(label)
		if _, dup := d.index[c]; dup {
			errs = append(errs, fmt.Sprintf("card %q is duplicated", label))
			continue
		}
		d.index[c] = struct{}{}
		d.cards = append(d.cards, c)
	}
	if len(errs) > 0 {
		return Deck{}, fmt.Errorf("invalid deck: %s", strings.Join(errs, "; "))
	}
	return d, nil
}

// Cards returns a copy of the deck in order.
func (d Deck) Cards() []Card {
	out := make([]Card, len(d.cards))
	copy(out, d.cards)
	return out
}

// Contains reports whether value is one of the deck's labels.
func (d Deck) Contains(value string) bool {
	_, ok := d.index[Card(value)]
	return ok
}

// Len returns the number of cards.
func (d Deck) Len() int { return len(d.cards) }
