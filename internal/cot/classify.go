package cot

import (
	"fmt"
	"strings"
)

// Category is the coarse semantic kind inferred for a message.
type Category int

const (
	// CategoryOther means unclassified, not confirmed generic.
	CategoryOther Category = iota
	CategoryGeoFence
	CategoryMarker
	CategoryRangeBearing
	CategoryRoute
	CategoryShape
)

var categoryNames = map[Category]string{
	CategoryOther:        "other",
	CategoryGeoFence:     "geofence",
	CategoryMarker:       "marker",
	CategoryRangeBearing: "range_bearing",
	CategoryRoute:        "route",
	CategoryShape:        "shape",
}

// Categories lists every category in declaration order.
func Categories() []Category {
	return []Category{CategoryOther, CategoryGeoFence, CategoryMarker, CategoryRangeBearing, CategoryRoute, CategoryShape}
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return fmt.Sprintf("category(%d)", int(c))
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	name, ok := categoryNames[c]
	if !ok {
		return nil, fmt.Errorf("cot: unknown category %d", int(c))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(text []byte) error {
	for cat, name := range categoryNames {
		if name == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("cot: unknown category %q", text)
}

type rule struct {
	token    string
	category Category
}

// Order matters: earlier rules take precedence.
var detailRules = []rule{
	{token: "__geofence", category: CategoryGeoFence},
	{token: "usericon", category: CategoryMarker},
}

var typeRules = []rule{
	{token: "u-r-b-", category: CategoryRangeBearing},
	{token: "u-rb-", category: CategoryRangeBearing},
	{token: "b-m-r", category: CategoryRoute},
	{token: "u-d-", category: CategoryShape},
}

// Classify infers the category of msg. Detail fragments are tried first, in
// document order, each against the detail rules in order; then the envelope
// type against the type rules. The first match wins and CategoryOther is
// returned when nothing matches. The result is a best-effort guess.
func Classify(msg Message) Category {
	for _, frag := range msg.Detail {
		if cat, ok := match(detailRules, frag); ok {
			return cat
		}
	}
	if cat, ok := match(typeRules, msg.Type); ok {
		return cat
	}
	return CategoryOther
}

func match(rules []rule, s string) (Category, bool) {
	for _, r := range rules {
		if strings.Contains(s, r.token) {
			return r.category, true
		}
	}
	return CategoryOther, false
}

// Classified pairs a message with its inferred category.
type Classified struct {
	Category Category
	Message  Message
}

// Detect parses text and classifies the result.
func Detect(text string) (Classified, error) {
	msg, err := Parse(text)
	if err != nil {
		return Classified{}, err
	}
	return Classified{Category: Classify(msg), Message: msg}, nil
}
