package accounts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// QueueClient talks to the spreadsheet-backed web app that holds the account
// queue. GET returns pending accounts (credentials XOR-obfuscated when the
// sheet side has a key configured); POST updates one account's status row.
type QueueClient struct {
	BaseURL string
	// Token is passed as a query parameter, the web app's native auth.
	Token string
	// EncryptKey de-obfuscates credentials marked _encrypted.
	EncryptKey string
	// SigningSecret, when set, additionally signs each request with a
	// short-lived HS256 bearer token.
	SigningSecret string

	HTTP *http.Client
}

func (c *QueueClient) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (c *QueueClient) endpoint() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("queue url: %w", err)
	}
	if c.Token != "" {
		q := u.Query()
		q.Set("token", c.Token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *QueueClient) sign(req *http.Request) error {
	if c.SigningSecret == "" {
		return nil
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "coursepilot",
		"iat": now.Unix(),
		"exp": now.Add(2 * time.Minute).Unix(),
	})
	signed, err := tok.SignedString([]byte(c.SigningSecret))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+signed)
	return nil
}

type queueRecord struct {
	UserID    string `json:"user_id"`
	UserPW    string `json:"user_pw"`
	ChatID    string `json:"telegram_chat_id"`
	Encrypted bool   `json:"_encrypted"`
}

// FetchPending returns the queue's pending accounts. An error response from
// the web app or a transport failure yields an empty list with the error;
// callers fall back to the file source.
func (c *QueueClient) FetchPending(ctx context.Context) ([]Account, error) {
	u, err := c.endpoint()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if err := c.sign(req); err != nil {
		return nil, err
	}
	res, err := c.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return nil, fmt.Errorf("queue fetch: %s", res.Status)
	}

	// the web app answers either a bare array or {accounts: [...]} and also
	// uses 200 for application errors
	var body json.RawMessage
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("queue fetch: %w", err)
	}
	var records []queueRecord
	if err := json.Unmarshal(body, &records); err != nil {
		var wrapped struct {
			Error    string        `json:"error"`
			Accounts []queueRecord `json:"accounts"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("queue fetch: %w", err)
		}
		if wrapped.Error != "" {
			return nil, fmt.Errorf("queue fetch: %s", wrapped.Error)
		}
		records = wrapped.Accounts
	}

	out := make([]Account, 0, len(records))
	for _, rec := range records {
		if rec.UserID == "" || rec.UserPW == "" {
			continue
		}
		acc := Account{UserID: rec.UserID, Password: rec.UserPW, ChatID: rec.ChatID}
		if rec.Encrypted && c.EncryptKey != "" {
			if id, err := xorDecode(rec.UserID, c.EncryptKey); err == nil {
				acc.UserID = id
			}
			if pw, err := xorDecode(rec.UserPW, c.EncryptKey); err == nil {
				acc.Password = pw
			}
		}
		out = append(out, acc)
	}
	return out, nil
}

// UpdateStatus posts one status row update. Best effort by contract.
func (c *QueueClient) UpdateStatus(ctx context.Context, userID string, status Status, note string) error {
	u, err := c.endpoint()
	if err != nil {
		return err
	}
	payload, _ := json.Marshal(map[string]string{
		"user_id": userID,
		"status":  string(status),
		"message": note,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.sign(req); err != nil {
		return err
	}
	res, err := c.client().Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode/100 != 2 {
		return fmt.Errorf("queue status update: %s", res.Status)
	}
	return nil
}

// Requeue moves one account back to pending, for operator-driven retries.
func (c *QueueClient) Requeue(ctx context.Context, userID string) error {
	return c.UpdateStatus(ctx, userID, StatusPending, "requeued by operator")
}

// xorDecode reverses the sheet side's base64(xor(key)) obfuscation. This is
// obfuscation, not cryptography; the key only keeps credentials from sitting
// in the sheet as plain text.
func xorDecode(encoded, key string) (string, error) {
	if key == "" || encoded == "" {
		return encoded, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(raw))
	for i, b := range raw {
		out[i] = b ^ key[i%len(key)]
	}
	return string(out), nil
}
