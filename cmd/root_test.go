package cmd

import (
	"testing"
)

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"serve", "ask", "index", "version"}
	for _, name := range want {
		found := false
		for _, c := range rootCmd.Commands() {
			if c.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestIndexSubcommands(t *testing.T) {
	want := map[string]bool{"add": false, "remove": false}
	for _, c := range indexCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("index subcommand %q not registered", name)
		}
	}
}
