// Package identity talks to the external session service that vouches for
// a client's claimed name during the encryption handshake.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ErrNotJoined reports that the session service has no record of the client
// joining with the presented session hash. The login must be rejected.
var ErrNotJoined = errors.New("identity service has no session for this client")

// Profile is the verified identity returned by the session service.
type Profile struct {
	// ID is the account UUID in canonical dashed form. The service sends
	// it flat (32 hex digits, no dashes).
	ID uuid.UUID

	// Name is the account's canonical username, which may differ from the
	// claimed one in letter case.
	Name string
}

// Client queries the session service's hasJoined endpoint.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client against baseURL, e.g.
// "https://sessionserver.mojang.com/session/minecraft". Timeout bounds the
// whole request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type hasJoinedResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HasJoined asks the service whether a client claiming username has joined
// a server with the given session hash. A 204 or empty body means it has
// not, reported as ErrNotJoined.
func (c *Client) HasJoined(ctx context.Context, username, sessionHash string) (*Profile, error) {
	q := url.Values{}
	q.Set("username", username)
	q.Set("serverId", sessionHash)
	endpoint := c.baseURL + "/hasJoined?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build hasJoined request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query identity service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil, ErrNotJoined
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("identity service returned %s", resp.Status)
	}

	var body hasJoinedResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode hasJoined response: %w", err)
	}
	if body.ID == "" || body.Name == "" {
		return nil, ErrNotJoined
	}

	id, err := uuid.Parse(body.ID)
	if err != nil {
		return nil, fmt.Errorf("parse profile id %q: %w", body.ID, err)
	}
	return &Profile{ID: id, Name: body.Name}, nil
}

// OfflineProfile derives a stable profile for a username without consulting
// the service, used when verification is disabled. The id is a name-based
// UUID so the same name always maps to the same identity.
func OfflineProfile(username string) *Profile {
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte("OfflinePlayer:"+username))
	return &Profile{ID: id, Name: username}
}
