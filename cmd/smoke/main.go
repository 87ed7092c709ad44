// Command smoke drives a running commonpool-api through one treasury and one
// governance round trip. It exits non-zero on the first mismatch, so it can
// gate deploys the same way a health check would.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"
)

const poolID = "demo-garden"

func main() {
	base := os.Getenv("COMMONPOOL_API_ADDR")
	if base == "" {
		base = "http://localhost:8080"
	}

	c := &client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	token, err := c.token("demo-owner")
	if err != nil {
		log.Fatalf("obtain token: %v", err)
	}
	c.auth = token

	// Treasury: a contribution then an expense must leave a consistent chain.
	var first struct {
		BalanceAfter int64 `json:"balance_after"`
	}
	if err := c.post("/v1/pools/"+poolID+"/treasury/entries", map[string]any{
		"kind":        "contribution",
		"amount":      1000,
		"description": "smoke contribution",
	}, &first); err != nil {
		log.Fatalf("record contribution: %v", err)
	}

	var second struct {
		BalanceAfter int64 `json:"balance_after"`
	}
	if err := c.post("/v1/pools/"+poolID+"/treasury/entries", map[string]any{
		"kind":        "expense",
		"amount":      400,
		"description": "smoke expense",
	}, &second); err != nil {
		log.Fatalf("record expense: %v", err)
	}
	if second.BalanceAfter != first.BalanceAfter-400 {
		log.Fatalf("balance chain broken: %d then %d", first.BalanceAfter, second.BalanceAfter)
	}

	var summary struct {
		Balance int64 `json:"balance"`
	}
	if err := c.get("/v1/pools/"+poolID+"/treasury/summary", &summary); err != nil {
		log.Fatalf("treasury summary: %v", err)
	}
	if summary.Balance != second.BalanceAfter {
		log.Fatalf("summary balance %d disagrees with last entry %d", summary.Balance, second.BalanceAfter)
	}

	// Governance: create, vote, close by the owner.
	var prop struct {
		ID string `json:"id"`
	}
	if err := c.post("/v1/pools/"+poolID+"/proposals", map[string]any{
		"title":       fmt.Sprintf("Smoke check %d", time.Now().Unix()),
		"description": "automated round trip",
	}, &prop); err != nil {
		log.Fatalf("create proposal: %v", err)
	}

	if err := c.post("/v1/pools/"+poolID+"/proposals/"+prop.ID+"/votes", map[string]any{
		"choice": "for",
	}, nil); err != nil {
		log.Fatalf("cast vote: %v", err)
	}

	var outcome struct {
		Status string `json:"status"`
	}
	if err := c.post("/v1/pools/"+poolID+"/proposals/"+prop.ID+"/close", nil, &outcome); err != nil {
		log.Fatalf("close proposal: %v", err)
	}
	if outcome.Status != "passed" && outcome.Status != "rejected" {
		log.Fatalf("unexpected outcome status %q", outcome.Status)
	}

	fmt.Printf("smoke test passed: pool=%s proposal=%s outcome=%s balance=%d\n",
		poolID, prop.ID, outcome.Status, summary.Balance)
}

type client struct {
	base string
	auth string
	http *http.Client
}

func (c *client) token(user string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.post("/v1/auth/token", map[string]any{"user": user}, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *client) post(path string, body any, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequest(http.MethodPost, c.base+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *client) get(path string, out any) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *client) do(req *http.Request, out any) error {
	if c.auth != "" {
		req.Header.Set("Authorization", "Bearer "+c.auth)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, bytes.TrimSpace(raw))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
