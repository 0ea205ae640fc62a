// Package template expands stored notification templates into per-channel
// title and body pairs.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/lalithlochan/courier/internal/db"
)

// placeholder matches {{name}} with optional whitespace inside the braces.
var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// Rendered is the content produced for one channel. HTML is only set for
// email.
type Rendered struct {
	Title string
	Body  string
	HTML  string
}

// Render selects the fields of t used by channel and substitutes vars into
// them. Unknown channels render empty.
func Render(t *db.NotificationTemplate, channel string, vars map[string]any) Rendered {
	var title, body, html *string

	switch channel {
	case db.ChannelPush:
		title = firstSet(t.PushTitle, t.InAppTitle)
		body = firstSet(t.PushBody, t.InAppMessage)
	case db.ChannelEmail:
		title = t.EmailSubject
		body = t.EmailText
		html = t.EmailHTML
	case db.ChannelSMS:
		body = t.SMSText
	case db.ChannelInApp:
		title = t.InAppTitle
		body = t.InAppMessage
	}

	return Rendered{
		Title: Expand(deref(title), vars),
		Body:  Expand(deref(body), vars),
		HTML:  Expand(deref(html), vars),
	}
}

// Expand replaces each {{name}} token whose name is in vars. Tokens without a
// matching variable are kept verbatim.
func Expand(s string, vars map[string]any) string {
	if s == "" || len(vars) == 0 {
		return s
	}

	return placeholder.ReplaceAllStringFunc(s, func(token string) string {
		name := placeholder.FindStringSubmatch(token)[1]
		v, ok := vars[name]
		if !ok {
			return token
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func firstSet(vals ...*string) *string {
	for _, v := range vals {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
