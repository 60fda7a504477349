package flow

import "fmt"

// Action is a button press. The set is closed; see Actions.
type Action string

const (
	ActionBuy          Action = "buy"
	ActionSell         Action = "sell"
	ActionSimulate     Action = "simulate"
	ActionContact      Action = "contact"
	ActionMainMenu     Action = "main_menu"
	ActionBack         Action = "back"
	ActionCancel       Action = "cancel"
	ActionMethodQRIS   Action = "method_qris"
	ActionMethodVA     Action = "method_va"
	ActionMethodManual Action = "method_manual"
	ActionConfirm      Action = "confirm"
	ActionEdit         Action = "edit"
	ActionPaid         Action = "paid"
)

var actions = []Action{
	ActionBuy, ActionSell, ActionSimulate, ActionContact, ActionMainMenu,
	ActionBack, ActionCancel,
	ActionMethodQRIS, ActionMethodVA, ActionMethodManual,
	ActionConfirm, ActionEdit, ActionPaid,
}

// Actions lists every action in display order.
func Actions() []Action {
	out := make([]Action, len(actions))
	copy(out, actions)
	return out
}

// ParseAction maps a callback token to an Action.
func ParseAction(s string) (Action, error) {
	for _, a := range actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}
