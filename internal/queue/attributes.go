package queue

import (
	"errors"
	"fmt"
	"strconv"
)

// VisibilityTimeout is the number of seconds a pulled message stays in-flight.
const VisibilityTimeout = "VisibilityTimeout"

const (
	MinVisibilityTimeout     = 0
	MaxVisibilityTimeout     = 43200
	DefaultVisibilityTimeout = 30
)

var errUnrecognizedAttribute = errors.New("unrecognized attribute")

// Rule validates one attribute value and supplies its default.
type Rule struct {
	Validate func(value string) error
	Default  string
}

// RuleSet maps attribute names to their rules. Adding an attribute is a new
// entry, not a new type.
type RuleSet struct {
	rules map[string]Rule
}

// NewRuleSet copies rules into a RuleSet.
func NewRuleSet(rules map[string]Rule) *RuleSet {
	rs := &RuleSet{rules: make(map[string]Rule, len(rules))}
	for name, r := range rules {
		rs.rules[name] = r
	}
	return rs
}

// DefaultRuleSet recognizes VisibilityTimeout only.
func DefaultRuleSet() *RuleSet {
	return NewRuleSet(map[string]Rule{
		VisibilityTimeout: {
			Validate: IntRange(MinVisibilityTimeout, MaxVisibilityTimeout),
			Default:  strconv.Itoa(DefaultVisibilityTimeout),
		},
	})
}

// IntRange accepts base-10 integers in [min, max].
func IntRange(min, max int) func(string) error {
	return func(value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("must be an integer")
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}

func (rs *RuleSet) IsRecognized(name string) bool {
	_, ok := rs.rules[name]
	return ok
}

// Validate reports why value is not acceptable for name.
func (rs *RuleSet) Validate(name, value string) error {
	r, ok := rs.rules[name]
	if !ok {
		return errUnrecognizedAttribute
	}
	if r.Validate == nil {
		return nil
	}
	return r.Validate(value)
}

func (rs *RuleSet) IsValidValue(name, value string) bool {
	return rs.Validate(name, value) == nil
}

// DefaultValueFor returns "" for unrecognized names.
func (rs *RuleSet) DefaultValueFor(name string) string {
	return rs.rules[name].Default
}

// Defaults returns a fresh map holding the default of every recognized attribute.
func (rs *RuleSet) Defaults() map[string]string {
	out := make(map[string]string, len(rs.rules))
	for name, r := range rs.rules {
		out[name] = r.Default
	}
	return out
}
