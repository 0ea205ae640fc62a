package template

import (
	"testing"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/stretchr/testify/assert"
)

func sp(s string) *string { return &s }

func TestExpand(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		vars map[string]any
		want string
	}{
		{"substitutes known name", "Hello {{name}}", map[string]any{"name": "Ann"}, "Hello Ann"},
		{"keeps unknown name", "Hello {{name}}", map[string]any{"other": "x"}, "Hello {{name}}"},
		{"keeps tokens without vars", "Hello {{name}}", nil, "Hello {{name}}"},
		{"tolerates inner whitespace", "Hi {{ name }}!", map[string]any{"name": "Bo"}, "Hi Bo!"},
		{"repeats", "{{a}}-{{a}}-{{b}}", map[string]any{"a": "x", "b": "y"}, "x-x-y"},
		{"stringifies numbers", "Total {{amount}}", map[string]any{"amount": 120.5}, "Total 120.5"},
		{"stringifies integers", "Room {{room}}", map[string]any{"room": 42}, "Room 42"},
		{"whole floats drop the fraction", "{{n}} nights", map[string]any{"n": float64(3)}, "3 nights"},
		{"nil value renders empty", "[{{x}}]", map[string]any{"x": nil}, "[]"},
		{"single braces untouched", "{name}", map[string]any{"name": "Ann"}, "{name}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.in, tt.vars))
		})
	}
}

func TestRender_ChannelFields(t *testing.T) {
	t.Parallel()

	tpl := &db.NotificationTemplate{
		Key:          "booking_confirmed",
		PushTitle:    sp("Booked {{hotelName}}"),
		PushBody:     sp("See you at {{hotelName}}"),
		EmailSubject: sp("Booking at {{hotelName}}"),
		EmailHTML:    sp("<p>{{hotelName}}</p>"),
		EmailText:    sp("{{hotelName}}"),
		SMSText:      sp("SMS {{hotelName}}"),
		InAppTitle:   sp("In-app {{hotelName}}"),
		InAppMessage: sp("Feed {{hotelName}}"),
	}
	vars := map[string]any{"hotelName": "X"}

	assert.Equal(t, Rendered{Title: "Booked X", Body: "See you at X"}, Render(tpl, db.ChannelPush, vars))
	assert.Equal(t, Rendered{Title: "Booking at X", Body: "X", HTML: "<p>X</p>"}, Render(tpl, db.ChannelEmail, vars))
	assert.Equal(t, Rendered{Title: "", Body: "SMS X"}, Render(tpl, db.ChannelSMS, vars))
	assert.Equal(t, Rendered{Title: "In-app X", Body: "Feed X"}, Render(tpl, db.ChannelInApp, vars))
}

func TestRender_Fallbacks(t *testing.T) {
	t.Parallel()

	tpl := &db.NotificationTemplate{
		EmailSubject: sp("Subject"),
		EmailText:    sp("plain {{v}}"),
		InAppTitle:   sp("Title"),
		InAppMessage: sp("Message {{v}}"),
	}
	vars := map[string]any{"v": 1}

	// push falls back to the in-app fields
	assert.Equal(t, Rendered{Title: "Title", Body: "Message 1"}, Render(tpl, db.ChannelPush, vars))
	// email without HTML renders only the text part
	assert.Equal(t, Rendered{Title: "Subject", Body: "plain 1"}, Render(tpl, db.ChannelEmail, vars))
}

func TestRender_NilFieldsRenderEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Rendered{}, Render(&db.NotificationTemplate{}, db.ChannelSMS, map[string]any{"a": "b"}))
	assert.Equal(t, Rendered{}, Render(&db.NotificationTemplate{}, db.ChannelPush, nil))
}
