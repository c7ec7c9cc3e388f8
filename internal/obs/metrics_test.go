package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"

	"storefront.org/internal/ids"
)

func TestCanonicalPath(t *testing.T) {
	id := ids.New()
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/api/v1/products/" + id:          "/api/v1/products/:id",
		"/api/v1/orders/" + id + "/cancel": "/api/v1/orders/:id/cancel",
		"/api/v1/products?page=2":         "/api/v1/products",
		"/api/v1/categories/not-an-id":    "/api/v1/categories/not-an-id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSecurityChannel(t *testing.T) {
	var buf bytes.Buffer
	restore := SetLogger(NewLogger(logrus.InfoLevel, &buf))
	defer restore()

	Security().WithField("ip", "10.0.0.1").Warn("rate_limited")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log is not valid JSON: %v", err)
	}
	if entry["channel"] != "security" || entry["msg"] != "rate_limited" {
		t.Fatalf("unexpected entry %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key in %v", entry)
	}
}
