package main

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/seantiz/tsunami/internal/model"
)

func TestParseExtent(t *testing.T) {
	got, err := parseExtent("-85, -70,-45,-25")
	if err != nil {
		t.Fatalf("parseExtent: %v", err)
	}
	want := model.Extent{West: -85, East: -70, South: -45, North: -25}
	if got != want {
		t.Errorf("parseExtent = %+v, want %+v", got, want)
	}
}

func TestParseExtentRejects(t *testing.T) {
	for _, in := range []string{"", "1,2,3", "1,2,3,4,5", "w,e,s,n"} {
		if _, err := parseExtent(in); !errors.Is(err, model.ErrInvalidRequest) {
			t.Errorf("parseExtent(%q) err = %v, want ErrInvalidRequest", in, err)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"frames", "runs", "serve", "simulate", "templates"}
	var got []string
	for _, c := range rootCmd.Commands() {
		switch c.Name() {
		case "help", "completion":
			continue
		}
		got = append(got, c.Name())
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRunsListsLedgerWithAll(t *testing.T) {
	for name, def := range map[string]string{"all": "false", "limit": "50"} {
		f := runsCmd.Flags().Lookup(name)
		if f == nil {
			t.Errorf("runs --%s not registered", name)
			continue
		}
		if f.DefValue != def {
			t.Errorf("runs --%s default = %q, want %q", name, f.DefValue, def)
		}
	}
}
