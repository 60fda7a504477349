package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn is an inline data button.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
	// URL turns the button into a link button; Unique and Data are ignored.
	URL string
}

// InlineButtonsRows builds an inline keyboard from rows of buttons. Empty rows are skipped.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			if btn.URL != "" {
				r[j] = *markup.URL(btn.Text, btn.URL).Inline()
				continue
			}
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}
