package browser

import (
	"context"
	"strings"
	"testing"

	"github.com/curaious/warden/pkg/execution"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com", false},
		{"http://localhost:8080/page", false},
		{"file:///etc/passwd", true},
		{"javascript:alert(1)", true},
		{"ftp://host/file", true},
		{"", true},
	}
	for _, tc := range cases {
		err := validateURL(tc.url)
		if tc.wantErr && err == nil {
			t.Errorf("expected rejection of %q", tc.url)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("unexpected rejection of %q: %v", tc.url, err)
		}
	}
}

func TestUnknownOperation(t *testing.T) {
	e := NewExecutor(Options{Headless: true})
	res := e.Execute(context.Background(), &execution.Request{
		Kind:      execution.KindBrowser,
		Operation: "teleport",
		Params:    map[string]any{"url": "https://example.com"},
	})
	if res.Success {
		t.Fatal("unknown operation succeeded")
	}
	if !strings.Contains(res.Error, "unknown browser operation") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestMissingSelector(t *testing.T) {
	e := NewExecutor(Options{Headless: true})
	res := e.Execute(context.Background(), &execution.Request{
		Kind:      execution.KindBrowser,
		Operation: "click",
		Params:    map[string]any{"url": "https://example.com"},
	})
	if res.Success {
		t.Fatal("click without selector succeeded")
	}
	if !strings.Contains(res.Error, "selector") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}

func TestRejectedSchemeBeforeBrowserLaunch(t *testing.T) {
	e := NewExecutor(Options{Headless: true})
	res := e.Execute(context.Background(), &execution.Request{
		Kind:      execution.KindBrowser,
		Operation: "navigate",
		Params:    map[string]any{"url": "file:///etc/shadow"},
	})
	if res.Success {
		t.Fatal("file scheme navigation succeeded")
	}
	if !strings.Contains(res.Error, "scheme") {
		t.Fatalf("unexpected error %q", res.Error)
	}
}
