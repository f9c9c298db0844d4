// Package vault encrypts and decrypts text through the HashiCorp Vault
// transit secrets engine. Callers depend on the Cipher interface so
// storage and tests can swap in fakes.
package vault

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Cipher turns plaintext into opaque ciphertext tokens and back.
// keyID selects the named encryption key; ciphertext tokens are only
// meaningful to the service that issued them.
type Cipher interface {
	Encrypt(ctx context.Context, keyID, plaintext string) (string, error)
	Decrypt(ctx context.Context, keyID, ciphertext string) (string, error)
}

// Client talks to the Vault transit API over HTTP.
type Client struct {
	addr       string
	token      string
	mount      string
	httpClient *http.Client
}

// New creates a Client for the Vault server at addr using the given
// token. mount is the transit engine mount path, usually "transit".
func New(addr, token, mount string) *Client {
	return &Client{
		addr:  strings.TrimRight(addr, "/"),
		token: token,
		mount: mount,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type encryptRequest struct {
	Plaintext string `json:"plaintext"`
}

type decryptRequest struct {
	Ciphertext string `json:"ciphertext"`
}

type transitResponse struct {
	Data struct {
		Ciphertext string `json:"ciphertext"`
		Plaintext  string `json:"plaintext"`
	} `json:"data"`
	Errors []string `json:"errors"`
}

// Encrypt returns the transit ciphertext token for plaintext under keyID.
func (c *Client) Encrypt(ctx context.Context, keyID, plaintext string) (string, error) {
	body := encryptRequest{
		Plaintext: base64.StdEncoding.EncodeToString([]byte(plaintext)),
	}
	var result transitResponse
	if err := c.post(ctx, fmt.Sprintf("/v1/%s/encrypt/%s", c.mount, keyID), body, &result); err != nil {
		return "", fmt.Errorf("encrypting with key %s: %w", keyID, err)
	}
	if result.Data.Ciphertext == "" {
		return "", fmt.Errorf("encrypting with key %s: empty ciphertext in response", keyID)
	}
	return result.Data.Ciphertext, nil
}

// Decrypt reverses Encrypt for a ciphertext token issued under keyID.
func (c *Client) Decrypt(ctx context.Context, keyID, ciphertext string) (string, error) {
	body := decryptRequest{Ciphertext: ciphertext}
	var result transitResponse
	if err := c.post(ctx, fmt.Sprintf("/v1/%s/decrypt/%s", c.mount, keyID), body, &result); err != nil {
		return "", fmt.Errorf("decrypting with key %s: %w", keyID, err)
	}
	raw, err := base64.StdEncoding.DecodeString(result.Data.Plaintext)
	if err != nil {
		return "", fmt.Errorf("decoding plaintext: %w", err)
	}
	return string(raw), nil
}

func (c *Client) post(ctx context.Context, path string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.addr+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Vault-Token", c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("vault request: %w", err)
	}
	defer resp.Body.Close()

	var tr transitResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decoding vault response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if len(tr.Errors) > 0 {
			return fmt.Errorf("vault status %d: %s", resp.StatusCode, strings.Join(tr.Errors, "; "))
		}
		return fmt.Errorf("vault status %d", resp.StatusCode)
	}
	if tp, ok := result.(*transitResponse); ok {
		*tp = tr
	}
	return nil
}
