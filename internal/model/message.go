package model

import "strings"

// TextMessage is a plain text message to a single phone number.
type TextMessage struct {
	Phone string `json:"phone"`
	Text  string `json:"message"`
}

// CarouselMessage is a card carousel with an optional leading text.
type CarouselMessage struct {
	Phone        string         `json:"phone"`
	Text         string         `json:"message,omitempty"`
	Cards        []CarouselCard `json:"carousel"`
	DelaySeconds int            `json:"delayMessage,omitempty"`
}

type CarouselCard struct {
	Text    string           `json:"text"`
	Media   string           `json:"media,omitempty"`
	Buttons []CarouselButton `json:"buttons,omitempty"`
}

// CarouselButton types: REPLY, URL, CALL, COPY.
type CarouselButton struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Phone    string `json:"phone,omitempty"`
	CopyText string `json:"copyText,omitempty"`
}

// ButtonID returns the vendor id for a button, derived from its type.
func (b CarouselButton) ButtonID() string {
	switch b.Kind() {
	case "URL":
		return firstNonEmpty(b.URL, b.Text)
	case "CALL":
		return b.Phone
	case "COPY":
		return firstNonEmpty(b.CopyText, b.Text)
	default:
		return firstNonEmpty(b.ID, b.Text)
	}
}

// Kind is the upper-cased button type, REPLY when unset.
func (b CarouselButton) Kind() string {
	k := strings.ToUpper(strings.TrimSpace(b.Type))
	if k == "" {
		return "REPLY"
	}
	return k
}

// DigitsOnly strips everything but ASCII digits from a phone number.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
