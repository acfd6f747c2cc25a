// Package intent maps free text to a coarse intent when no session is
// active. Matching is keyword containment against an ordered rule list;
// the first matching rule wins, so rule order is significant (broken-device
// phrasing is checked before generic payment phrasing).
package intent

import "strings"

// Intent is a coarse classification of an inbound free-text message.
type Intent string

const (
	Delivery  Intent = "delivery"
	Location  Intent = "location"
	Broken    Intent = "broken"
	Pricelist Intent = "pricelist"
	Reviews   Intent = "reviews"
	Agent     Intent = "agent"
	Pay       Intent = "pay"
	Unknown   Intent = "unknown"
)

type rule struct {
	intent   Intent
	keywords []string
}

// Rule order is fixed and load-bearing. Do not reorder without updating the
// classifier tests.
var rules = []rule{
	{Delivery, []string{"שליחות", "שליח", "משלוח", "עד הבית", "הגעה", "מגיעים אלי"}},
	{Location, []string{"איפה", "כתובת", "מיקום", "ניווט", "וויז", "waze", "איך מגיעים"}},
	{Broken, []string{"נשבר", "נישבר", "שבור", "נשברה", "מסך נשבר", "נפל ונשבר"}},
	{Pricelist, []string{"מחירון", "מחירים", "כמה עולה", "עלות"}},
	{Reviews, []string{"ביקורות", "חוות דעת", "המלצות"}},
	{Agent, []string{"נציג", "אדם", "טלפון", "דבר איתי", "לחזור אלי"}},
	{Pay, []string{"תשלום", "לשלם", "לינק", "paypal", "פייפאל", "מקדמה"}},
}

// Detect returns exactly one intent for the given text, defaulting to Unknown.
func Detect(text string) Intent {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return Unknown
	}
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(t, kw) {
				return r.intent
			}
		}
	}
	return Unknown
}
