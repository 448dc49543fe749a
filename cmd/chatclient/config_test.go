package main

import "testing"

func TestConfigValidate_RequiresServerUnlessDiscover(t *testing.T) {
	c := &appConfig{logFormat: "text", logLevel: "info", handshakeTO: 1}
	if err := c.validate(); err == nil {
		t.Fatal("expected error when neither -server nor -discover is set")
	}
	c.discover = true
	if err := c.validate(); err != nil {
		t.Fatalf("expected ok with -discover set, got %v", err)
	}
}

func TestConfigValidate_BadLevel(t *testing.T) {
	c := &appConfig{serverAddr: "localhost:1234", logFormat: "text", logLevel: "loud", handshakeTO: 1}
	if err := c.validate(); err == nil {
		t.Fatal("expected error for bad log level")
	}
}
