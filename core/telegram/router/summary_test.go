package router

import (
	"errors"
	"fmt"
	"testing"
)

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string  { return "session not found" }

type plainErr struct{}

func (*plainErr) Error() string { return "plain" }

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"explicit code", codedErr{}, "SESSION_NOT_FOUND"},
		{"wrapped code", fmt.Errorf("flow: %w", codedErr{}), "SESSION_NOT_FOUND"},
		{"pointer type", &plainErr{}, "PLAINERR"},
		{"anonymous", errors.New("x"), "ERRORSTRING"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorCode(tt.err); got != tt.want {
				t.Fatalf("errorCode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHandlerName(t *testing.T) {
	if got := handlerName("cmd.", "/Start"); got != "cmd.start" {
		t.Fatalf("handlerName = %q", got)
	}
	if got := handlerName("callback.", ""); got != "callback.unknown" {
		t.Fatalf("handlerName = %q", got)
	}
}
