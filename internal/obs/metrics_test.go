package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                          "/",
		"/metrics":                  "/metrics",
		"/v1/pools/abc":             "/v1/pools/:id",
		"/v1/pools/abc/treasury":    "/v1/pools/:id/treasury",
		"/v1/pools/abc/proposals":   "/v1/pools/:id/proposals",
		"/v1/pools/abc/proposals/x": "/v1/pools/:id/proposals/:id",
		"/v1/pools/abc/proposals/x/votes": "/v1/pools/:id/proposals/:id/votes",
		"/v1/federations/f1":              "/v1/federations/:id",
		"/v1/tiers/pro/features":          "/v1/tiers/:id/features",
		"/v1/federations/f1?limit=5":      "/v1/federations/:id",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
