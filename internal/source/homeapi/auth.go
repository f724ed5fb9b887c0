package homeapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

type loginResponse struct {
	Data struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	} `json:"data"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges a username and password for an access/refresh token pair.
func (c *Client) Login(ctx context.Context, username, password string) (*oauth2.Token, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/access/login", "", body, &out); err != nil {
		return nil, fmt.Errorf("homeapi.Login: %w", err)
	}
	if strings.TrimSpace(out.Data.AccessToken) == "" {
		return nil, fmt.Errorf("homeapi.Login: response carried no access token")
	}
	return &oauth2.Token{
		AccessToken:  out.Data.AccessToken,
		RefreshToken: out.Data.RefreshToken,
		TokenType:    "Bearer",
	}, nil
}

// Refresh trades a refresh token for a new access token. If the server
// does not rotate the refresh token, the old one is carried over.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var out refreshResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/access/token/refresh", "", body, &out); err != nil {
		return nil, fmt.Errorf("homeapi.Refresh: %w", err)
	}
	if strings.TrimSpace(out.AccessToken) == "" {
		return nil, fmt.Errorf("homeapi.Refresh: response carried no access token")
	}
	next := out.RefreshToken
	if next == "" {
		next = refreshToken
	}
	return &oauth2.Token{
		AccessToken:  out.AccessToken,
		RefreshToken: next,
		TokenType:    "Bearer",
	}, nil
}

// Logout revokes the refresh token on the server.
func (c *Client) Logout(ctx context.Context, accessToken, refreshToken string) error {
	body := map[string]string{"refreshToken": refreshToken}
	if err := c.do(ctx, http.MethodPost, "/api/v1/access/logout", accessToken, body, nil); err != nil {
		return fmt.Errorf("homeapi.Logout: %w", err)
	}
	return nil
}
