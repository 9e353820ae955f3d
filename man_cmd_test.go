package main

import (
	"strings"
	"testing"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
)

func TestManPageGeneration(t *testing.T) {
	manPage, err := mcobra.NewManPage(1, rootCmd)
	if err != nil {
		t.Fatalf("NewManPage failed: %v", err)
	}

	doc := manPage.Build(roff.NewDocument())
	if !strings.Contains(doc, "talkback") {
		t.Error("Man page does not mention the command name")
	}
	if !strings.Contains(doc, ".TH") {
		t.Error("Man page is missing the roff title header")
	}
	for _, sub := range []string{"export", "config"} {
		if !strings.Contains(doc, sub) {
			t.Errorf("Man page does not document the %s subcommand", sub)
		}
	}
}
