package spotify

import (
	"context"
	"time"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Spotify allows roughly 15 requests per 10 seconds per client.
var apiLimiter = rate.NewLimiter(rate.Every(666*time.Millisecond), 1)

// NewUserClient wraps a user OAuth access token (supplied per request by the
// caller, never stored) in a Web API client.
func NewUserClient(ctx context.Context, accessToken string) *spotify.Client {
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	httpClient := spotifyauth.New().Client(ctx, token)
	httpClient.Timeout = 30 * time.Second
	return spotify.New(httpClient)
}

// NewSearchClient builds a client-credentials client for search-only use.
func NewSearchClient(ctx context.Context, clientID, clientSecret string) *spotify.Client {
	config := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	return spotify.New(config.Client(ctx))
}

// NewAnonymousClient builds a search client around a web-player token
// obtained without credentials (see anon.go).
func NewAnonymousClient(ctx context.Context, accessToken string) *spotify.Client {
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	httpClient := spotifyauth.New().Client(ctx, token)
	httpClient.Timeout = 30 * time.Second
	return spotify.New(httpClient)
}

// wait blocks until the shared limiter allows another API call.
func wait(ctx context.Context) error {
	return apiLimiter.Wait(ctx)
}
