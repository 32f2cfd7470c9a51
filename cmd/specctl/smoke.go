package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/auth"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/models"
)

type checkResult struct {
	Name    string
	Success bool
	Err     error
	Details string
}

// smokeOutcome is the part of a turn outcome the smoke checks read.
type smokeOutcome struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type smokeRunner struct {
	baseURL string
	token   string
	userID  string
	client  *http.Client
}

// SmokeCmd runs end-to-end checks against a running API server.
func SmokeCmd() *cobra.Command {
	var (
		baseURL string
		token   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run end-to-end checks against a running API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if token == "" {
				secret := getenv("JWT_SECRET")
				if secret == "" {
					return errors.New("--token or JWT_SECRET is required")
				}
				jm, err := auth.NewJWTManager(secret)
				if err != nil {
					return err
				}
				if token, err = jm.GenerateToken(ctx, "specctl-smoke", []string{auth.RoleMessaging}, 10*time.Minute); err != nil {
					return err
				}
			}

			r := &smokeRunner{
				baseURL: strings.TrimRight(baseURL, "/"),
				token:   token,
				userID:  "smoke-" + uuid.NewString(),
				client:  &http.Client{Timeout: timeout},
			}
			results := r.run(ctx)

			failed := 0
			for _, res := range results {
				status := "PASS"
				if !res.Success {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s: %s\n", status, res.Name, res.Details)
				if res.Err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "      %v\n", res.Err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d checks failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "Bridge token (minted from JWT_SECRET when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Per-request timeout")
	return cmd
}

func (r *smokeRunner) run(ctx context.Context) []checkResult {
	results := []checkResult{
		r.checkStatus(ctx, "liveness", http.MethodGet, "/health", "", http.StatusOK),
		r.checkStatus(ctx, "readiness", http.MethodGet, "/ready", "", http.StatusOK),
		r.checkStatus(ctx, "rejects anonymous calls", http.MethodPost, "/api/conversations/"+r.userID+"/resume", "", http.StatusUnauthorized),
		r.checkTurn(ctx),
		r.checkStream(ctx),
	}
	// Always clean up the smoke conversation.
	return append(results, r.checkStatus(ctx, "reset", http.MethodDelete, "/api/conversations/"+r.userID, r.token, http.StatusNoContent))
}

// checkStatus calls path and compares the status. An empty token sends
// no Authorization header.
func (r *smokeRunner) checkStatus(ctx context.Context, name, method, path, token string, want int) checkResult {
	resp, err := r.do(ctx, method, path, token, nil)
	if err != nil {
		return checkResult{Name: name, Err: err, Details: "request failed"}
	}
	resp.Body.Close()
	if resp.StatusCode != want {
		return checkResult{Name: name, Details: fmt.Sprintf("status %d, want %d", resp.StatusCode, want)}
	}
	return checkResult{Name: name, Success: true, Details: fmt.Sprintf("status %d", resp.StatusCode)}
}

func (r *smokeRunner) checkTurn(ctx context.Context) checkResult {
	const name = "message turn"
	resp, err := r.do(ctx, http.MethodPost, "/api/conversations/"+r.userID+"/messages", r.token,
		models.MessageRequest{Message: "I want a standard window"})
	if err != nil {
		return checkResult{Name: name, Err: err, Details: "request failed"}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return checkResult{Name: name, Details: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	var out smokeOutcome
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return checkResult{Name: name, Err: err, Details: "undecodable outcome"}
	}
	if out.Type != "NEEDS_CLARIFICATION" {
		return checkResult{Name: name, Details: fmt.Sprintf("outcome %s, want NEEDS_CLARIFICATION", out.Type)}
	}
	return checkResult{Name: name, Success: true, Details: out.Message}
}

func (r *smokeRunner) checkStream(ctx context.Context) checkResult {
	const name = "websocket turn"
	u, err := url.Parse(r.baseURL + "/api/ws/conversations/" + r.userID)
	if err != nil {
		return checkResult{Name: name, Err: err, Details: "bad url"}
	}
	u.Scheme = strings.Replace(u.Scheme, "http", "ws", 1)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+r.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return checkResult{Name: name, Err: err, Details: "dial failed"}
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(r.client.Timeout))
	if err := conn.WriteJSON(models.MessageRequest{Message: "casement"}); err != nil {
		return checkResult{Name: name, Err: err, Details: "write failed"}
	}
	var out smokeOutcome
	if err := conn.ReadJSON(&out); err != nil {
		return checkResult{Name: name, Err: err, Details: "read failed"}
	}
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	if out.Type != "COLLECT_INFORMATION" {
		return checkResult{Name: name, Details: fmt.Sprintf("outcome %s, want COLLECT_INFORMATION", out.Type)}
	}
	return checkResult{Name: name, Success: true, Details: out.Message}
}

func (r *smokeRunner) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return r.client.Do(req)
}
