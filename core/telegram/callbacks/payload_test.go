package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		cb          *tele.Callback
		key, detail string
	}{
		{name: "nil", cb: nil},
		{name: "raw data", cb: &tele.Callback{Data: "\fpaid|LIRA_1_2"}, key: "paid", detail: "LIRA_1_2"},
		{name: "no payload", cb: &tele.Callback{Data: "\fcancel"}, key: "cancel"},
		{name: "payload with pipe", cb: &tele.Callback{Data: "\fx|a|b"}, key: "x", detail: "a|b"},
		{name: "already split", cb: &tele.Callback{Unique: "buy", Data: "1"}, key: "buy", detail: "1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, p := Parse(tt.cb)
			if k != tt.key || p != tt.detail {
				t.Fatalf("Parse = (%q, %q), want (%q, %q)", k, p, tt.key, tt.detail)
			}
		})
	}
}
