package database

import "testing"

func TestConfigURL(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "lira", Password: "p@ss word", Name: "orders"}
	want := "postgres://lira:p%40ss%20word@db:5432/orders?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Fatalf("URL = %q, want %q", got, want)
	}
}
