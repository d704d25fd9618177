package session

import "fmt"

// Strategy is an element location strategy.
type Strategy string

const (
	StrategyID            Strategy = "id"
	StrategyTagName       Strategy = "tag name"
	StrategyAnonAttribute Strategy = "anon attribute"
	StrategyCSS           Strategy = "css selector"
)

// Locator pairs a strategy with its value.
type Locator struct {
	Strategy Strategy
	Value    string
	// Attr is the attribute name for StrategyAnonAttribute; Value is its value.
	Attr string
}

func ByID(id string) Locator        { return Locator{Strategy: StrategyID, Value: id} }
func ByTagName(tag string) Locator  { return Locator{Strategy: StrategyTagName, Value: tag} }
func ByCSS(selector string) Locator { return Locator{Strategy: StrategyCSS, Value: selector} }

// ByAnonAttribute matches anonymous content by attribute, e.g. anonid="close-button".
func ByAnonAttribute(attr, value string) Locator {
	return Locator{Strategy: StrategyAnonAttribute, Attr: attr, Value: value}
}

func (l Locator) String() string {
	if l.Strategy == StrategyAnonAttribute {
		return fmt.Sprintf("%s[%s=%q]", l.Strategy, l.Attr, l.Value)
	}
	return fmt.Sprintf("%s=%q", l.Strategy, l.Value)
}
