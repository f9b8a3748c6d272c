package agent

import "strings"

// Category is the user-facing classification of a turn failure.
type Category int

// Failure categories, in classification priority order.
const (
	CategoryGeneric Category = iota
	CategoryEmptyInput
	CategoryStorage
	CategoryInference
	CategoryPerformance
	CategoryAuthorization
)

// categoryRule maps a keyword set to a category. Rules are evaluated in
// order and the first match wins.
type categoryRule struct {
	keywords []string
	category Category
}

var categoryRules = []categoryRule{
	{[]string{"empty text parameter"}, CategoryEmptyInput},
	{[]string{"database", "sql"}, CategoryStorage},
	{[]string{"model", "prediction"}, CategoryInference},
	{[]string{"memory", "timeout"}, CategoryPerformance},
	{[]string{"permission", "access"}, CategoryAuthorization},
}

// Classify maps a turn failure to a user-facing category by
// case-insensitive substring match. A nil error is generic.
func Classify(err error) Category {
	if err == nil {
		return CategoryGeneric
	}
	msg := strings.ToLower(err.Error())
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(msg, kw) {
				return rule.category
			}
		}
	}
	return CategoryGeneric
}

// Message returns the fixed user-facing sentence for the category. It
// never panics; unknown values fall back to the generic sentence.
func (c Category) Message() string {
	switch c {
	case CategoryEmptyInput:
		return "I didn't receive any message to respond to. Please type a question and try again."
	case CategoryStorage:
		return "I'm having trouble accessing the complaint database right now. Please try again in a few moments."
	case CategoryInference:
		return "The language model is currently unavailable. Please try again shortly."
	case CategoryPerformance:
		return "The request took too long to process. Please try a simpler question or try again later."
	case CategoryAuthorization:
		return "I don't have permission to perform that action. Please contact an administrator if you believe this is a mistake."
	default:
		return "I encountered an error while processing your request. Please try again or contact support."
	}
}

// ClassifyMessage is a convenience that classifies err and returns the
// matching sentence. It always produces text.
func ClassifyMessage(err error) string {
	return Classify(err).Message()
}
