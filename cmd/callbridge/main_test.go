package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestBuildRootCmd(t *testing.T) {
	cmd := buildRootCmd()
	if cmd.Use != "callbridge" {
		t.Errorf("unexpected root use %q", cmd.Use)
	}

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "config"} {
		if !names[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestConfigSchemaCmd(t *testing.T) {
	cmd := buildRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"config", "schema"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "public_base_url") {
		t.Errorf("schema output missing properties: %s", out.String())
	}
}

func TestConfigValidateCmd_MissingFile(t *testing.T) {
	cmd := buildRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"config", "validate", "--config", "/nonexistent/callbridge.yaml"})

	if err := cmd.Execute(); err == nil {
		t.Error("expected error for missing config file")
	}
}
