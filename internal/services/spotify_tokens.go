// Anonymous web-player credentials for the Spotify GraphQL API
package services

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	spotifyEmbedURL       = "https://open.spotify.com/embed/playlist/37i9dQZF1DXcBWIGoYBM5M"
	spotifyClientTokenURL = "https://clienttoken.spotify.com/v1/clienttoken"
	spotifyClientVersion  = "1.2.77.2.g23d1d0ed"
	spotifyClientID       = "d8a5ed958d274c2e8ee717e6a4b0971d"
	spotifyOrigin         = "https://open.spotify.com"

	accessTokenLifetime     = time.Hour
	clientTokenLifetimeSecs = 1209600
	minAccessTokenLength    = 50
)

var accessTokenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)accessToken["\s:]+["']([A-Za-z0-9_-]+)["']`),
	regexp.MustCompile(`(?i)["']accessToken["'][:\s]+["']([A-Za-z0-9_-]+)["']`),
	regexp.MustCompile(`(?i)"token"[:\s]+"([A-Za-z0-9_-]{100,})"`),
}

// AccessTokenFetcher scrapes an anonymous bearer token from the public embed page.
type AccessTokenFetcher struct {
	api *APIClient
	url string
	now func() time.Time
}

// NewAccessTokenFetcher creates a fetcher for pageURL (empty uses the default embed page).
func NewAccessTokenFetcher(api *APIClient, pageURL string) *AccessTokenFetcher {
	if pageURL == "" {
		pageURL = spotifyEmbedURL
	}
	return &AccessTokenFetcher{api: api, url: pageURL, now: time.Now}
}

func (f *AccessTokenFetcher) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	resp, err := f.api.Get(ctx, f.url, map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.9",
		"Referer":         spotifyOrigin + "/",
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err("spotify embed"); err != nil {
		return nil, err
	}

	return ParseAccessToken(resp.Body, f.now())
}

// ParseAccessToken extracts the bearer token from embed page HTML.
//
// The __NEXT_DATA__ session is preferred; script bodies are then searched for a token-shaped value.
func ParseAccessToken(html []byte, now time.Time) (*oauth2.Token, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: embed page: %v", shared.ErrMalformedResponse, err)
	}

	if data := doc.Find("script#__NEXT_DATA__").First().Text(); data != "" && gjson.Valid(data) {
		session := gjson.Get(data, "props.pageProps.state.settings.session")
		if token := session.Get("accessToken").String(); len(token) > minAccessTokenLength {
			expiry := now.Add(accessTokenLifetime)
			if ms := session.Get("accessTokenExpirationTimestampMs").Int(); ms > 0 {
				expiry = time.UnixMilli(ms)
			}
			return &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: expiry}, nil
		}
	}

	var token string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		token = matchAccessToken(s.Text())
		return token == ""
	})
	if token == "" {
		token = matchAccessToken(string(html))
	}
	if token == "" {
		return nil, fmt.Errorf("%w: no access token found in embed HTML", shared.ErrMalformedResponse)
	}

	return &oauth2.Token{AccessToken: token, TokenType: "Bearer", Expiry: now.Add(accessTokenLifetime)}, nil
}

func matchAccessToken(body string) string {
	for _, pattern := range accessTokenPatterns {
		if m := pattern.FindStringSubmatch(body); len(m) > 1 && len(m[1]) > minAccessTokenLength {
			return m[1]
		}
	}
	return ""
}

// ClientTokenFetcher registers a pseudo web-player client and returns its client token.
type ClientTokenFetcher struct {
	api *APIClient
	url string
	now func() time.Time
}

// NewClientTokenFetcher creates a fetcher posting to endpoint (empty uses the default).
func NewClientTokenFetcher(api *APIClient, endpoint string) *ClientTokenFetcher {
	if endpoint == "" {
		endpoint = spotifyClientTokenURL
	}
	return &ClientTokenFetcher{api: api, url: endpoint, now: time.Now}
}

type clientTokenRequest struct {
	ClientData clientData `json:"client_data"`
}

type clientData struct {
	ClientVersion string    `json:"client_version"`
	ClientID      string    `json:"client_id"`
	JSSDKData     jsSDKData `json:"js_sdk_data"`
}

type jsSDKData struct {
	DeviceBrand string `json:"device_brand"`
	DeviceModel string `json:"device_model"`
	OS          string `json:"os"`
	OSVersion   string `json:"os_version"`
}

func (f *ClientTokenFetcher) FetchToken(ctx context.Context) (*oauth2.Token, error) {
	payload := clientTokenRequest{ClientData: clientData{
		ClientVersion: spotifyClientVersion,
		ClientID:      spotifyClientID,
		JSSDKData: jsSDKData{
			DeviceBrand: "unknown",
			DeviceModel: "desktop",
			OS:          "macOS",
			OSVersion:   "unknown",
		},
	}}

	resp, err := f.api.PostJSON(ctx, f.url, map[string]string{"Accept": "application/json"}, payload)
	if err != nil {
		return nil, err
	}
	if err := resp.Err("spotify clienttoken"); err != nil {
		return nil, err
	}

	return ParseClientToken(resp.Body, f.now())
}

// ParseClientToken reads granted_token from a clienttoken response.
func ParseClientToken(body []byte, now time.Time) (*oauth2.Token, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: clienttoken response is not JSON", shared.ErrMalformedResponse)
	}

	granted := gjson.GetBytes(body, "granted_token")
	token := granted.Get("token").String()
	if token == "" {
		return nil, fmt.Errorf("%w: no client token in response", shared.ErrMalformedResponse)
	}

	secs := granted.Get("expires_after_seconds").Int()
	if secs <= 0 {
		secs = clientTokenLifetimeSecs
	}
	return &oauth2.Token{AccessToken: token, Expiry: now.Add(time.Duration(secs) * time.Second)}, nil
}
