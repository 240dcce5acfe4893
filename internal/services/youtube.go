// YouTube Music implementation of [Matcher]
//
// Searches go through the InnerTube API of music.youtube.com, authenticated with the
// session cookies of a signed-in browser (Netscape cookie file).
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/tidwall/gjson"

	"github.com/peanuz/playlist-sync/internal/models"
	"github.com/peanuz/playlist-sync/internal/shared"
)

const (
	youtubeMusicOrigin   = "https://music.youtube.com"
	youtubeWatchURL      = "https://www.youtube.com/watch?v="
	youtubeClientName    = "67"
	defaultClientVersion = "1.20251029.03.00"

	// WeakMatchThreshold is the confidence below which a match is logged as doubtful.
	WeakMatchThreshold = 0.5
)

var (
	apiKeyRegex        = regexp.MustCompile(`(?i)"INNERTUBE_API_KEY"\s*:\s*"([^"]+)"`)
	contextMarkerRegex = regexp.MustCompile(`"INNERTUBE_CONTEXT"\s*:\s*\{`)
	clientNameRegex    = regexp.MustCompile(`"clientName"\s*:\s*"([^"]+)"`)
	clientVersionRegex = regexp.MustCompile(`"clientVersion"\s*:\s*"([^"]+)"`)
	glRegex            = regexp.MustCompile(`"gl"\s*:\s*"([^"]+)"`)
	hlRegex            = regexp.MustCompile(`"hl"\s*:\s*"([^"]+)"`)
)

// YouTubeMusicService opens cookie-authenticated search sessions.
type YouTubeMusicService struct {
	api         *APIClient
	cookiesPath string
	origin      string
	logger      *log.Logger
	now         func() time.Time
}

// NewYouTubeMusicService creates a matcher reading cookies from cookiesPath.
// An empty origin uses https://music.youtube.com.
func NewYouTubeMusicService(api *APIClient, cookiesPath, origin string, logger *log.Logger) *YouTubeMusicService {
	if origin == "" {
		origin = youtubeMusicOrigin
	}
	return &YouTubeMusicService{
		api:         api,
		cookiesPath: cookiesPath,
		origin:      strings.TrimSuffix(origin, "/"),
		logger:      logger,
		now:         time.Now,
	}
}

// Open loads the cookie file, fetches the home page and extracts the InnerTube key and client context.
func (y *YouTubeMusicService) Open(ctx context.Context) (MatchSession, error) {
	jar, err := shared.LoadCookieFile(y.cookiesPath)
	if err != nil {
		return nil, err
	}
	jar = jar.Valid(y.now())
	if len(jar) == 0 {
		return nil, fmt.Errorf("%w: no valid cookies in %s", shared.ErrMissingCookies, y.cookiesPath)
	}
	cookie := jar.Header()

	resp, err := y.api.Get(ctx, y.origin, map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "de-DE,de;q=0.9,en;q=0.8",
		"Cookie":          cookie,
		"Referer":         y.origin,
	})
	if err != nil {
		return nil, err
	}
	if err := resp.Err("youtube music"); err != nil {
		return nil, err
	}

	cfg, err := ParseInnerTubeConfig(resp.Body, y.origin)
	if err != nil {
		return nil, err
	}

	y.logger.Debug("opened search session", "client_version", cfg.ClientVersion, "cookies", len(jar))
	return &youtubeSession{
		api:    y.api,
		origin: y.origin,
		cookie: cookie,
		config: cfg,
		cache:  make(map[string][]byte),
		logger: y.logger,
	}, nil
}

// InnerTubeConfig is what a search session needs from the home page.
type InnerTubeConfig struct {
	APIKey        string
	Context       json.RawMessage
	ClientVersion string
}

// ParseInnerTubeConfig extracts INNERTUBE_API_KEY and INNERTUBE_CONTEXT from the home page.
//
// When the context object cannot be read, one is assembled from the individual client
// fields, falling back to the WEB_REMIX defaults.
func ParseInnerTubeConfig(html []byte, origin string) (*InnerTubeConfig, error) {
	m := apiKeyRegex.FindSubmatch(html)
	if m == nil {
		return nil, fmt.Errorf("%w: could not extract INNERTUBE_API_KEY", shared.ErrMalformedResponse)
	}
	cfg := &InnerTubeConfig{APIKey: string(m[1])}

	if loc := contextMarkerRegex.FindIndex(html); loc != nil {
		if obj := balancedObject(html[loc[1]-1:]); obj != nil && gjson.ValidBytes(obj) && gjson.GetBytes(obj, "client").IsObject() {
			cfg.Context = obj
		}
	}

	if cfg.Context == nil {
		client := map[string]string{
			"clientName":    submatchOr(clientNameRegex, html, "WEB_REMIX"),
			"clientVersion": submatchOr(clientVersionRegex, html, defaultClientVersion),
			"gl":            submatchOr(glRegex, html, "DE"),
			"hl":            submatchOr(hlRegex, html, "de"),
			"platform":      "DESKTOP",
			"originalUrl":   origin,
		}
		data, err := json.Marshal(map[string]any{"client": client})
		if err != nil {
			return nil, err
		}
		cfg.Context = data
	}

	cfg.ClientVersion = gjson.GetBytes(cfg.Context, "client.clientVersion").String()
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = defaultClientVersion
	}
	return cfg, nil
}

// balancedObject returns the JSON object starting at data[0], honoring string literals.
func balancedObject(data []byte) []byte {
	depth := 0
	inString, escaped := false, false
	for i, c := range data {
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return data[:i+1]
			}
		}
	}
	return nil
}

func submatchOr(re *regexp.Regexp, data []byte, fallback string) string {
	if m := re.FindSubmatch(data); m != nil {
		return string(m[1])
	}
	return fallback
}

type youtubeSession struct {
	api    *APIClient
	origin string
	cookie string
	config *InnerTubeConfig
	logger *log.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

func (s *youtubeSession) Match(ctx context.Context, track models.Track) (*models.Match, error) {
	query := track.SearchQuery()
	if query == "" {
		return nil, fmt.Errorf("%w: track %s has no artists or title to search", shared.ErrInvalidInput, track.ID)
	}

	body, err := s.search(ctx, query)
	if err != nil {
		return nil, err
	}

	match, err := ParseSearchResults(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, query)
	}
	match.Query = query
	match.URL = youtubeWatchURL + match.VideoID
	match.Confidence = MatchConfidence(track.Title, match.Title)

	if match.Confidence < WeakMatchThreshold {
		s.logger.Warn("weak match", "track", track.DisplayName(), "candidate", match.Title, "confidence", fmt.Sprintf("%.2f", match.Confidence))
	}
	return match, nil
}

// search returns the raw response for query, from the session cache when present.
func (s *youtubeSession) search(ctx context.Context, query string) ([]byte, error) {
	key := strings.ToLower(query)

	s.mu.Lock()
	if s.cache == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: search session is closed", shared.ErrInvalidInput)
	}
	if body, ok := s.cache[key]; ok {
		s.mu.Unlock()
		return body, nil
	}
	s.mu.Unlock()

	endpoint := s.origin + "/youtubei/v1/search?prettyPrint=false&key=" + s.config.APIKey
	payload := map[string]any{
		"context": s.config.Context,
		"query":   query,
	}
	resp, err := s.api.PostJSON(ctx, endpoint, map[string]string{
		"Accept":                   "*/*",
		"Accept-Language":          "de-DE,de;q=0.9",
		"Cookie":                   s.cookie,
		"Origin":                   s.origin,
		"Referer":                  s.origin + "/",
		"X-Youtube-Client-Name":    youtubeClientName,
		"X-Youtube-Client-Version": s.config.ClientVersion,
	}, payload)
	if err != nil {
		return nil, err
	}
	if err := resp.Err("youtube music search"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.cache != nil {
		s.cache[key] = resp.Body
	}
	s.mu.Unlock()
	return resp.Body, nil
}

func (s *youtubeSession) Close() error {
	s.mu.Lock()
	s.cache = nil
	s.mu.Unlock()
	return nil
}

// ParseSearchResults returns the first shelf item with a playable video.
//
// The overlay play button's endpoint is used when present, else the item's
// navigation endpoint. An item whose chosen endpoint has no video is skipped.
func ParseSearchResults(body []byte) (*models.Match, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: search response is not JSON", shared.ErrMalformedResponse)
	}

	tabs := gjson.GetBytes(body, "contents.tabbedSearchResultsRenderer.tabs").Array()
	for _, tab := range tabs {
		for _, section := range tab.Get("tabRenderer.content.sectionListRenderer.contents").Array() {
			for _, item := range section.Get("musicShelfRenderer.contents").Array() {
				renderer := item.Get("musicResponsiveListItemRenderer")
				if !renderer.Exists() {
					continue
				}

				endpoint := renderer.Get("overlay.musicItemThumbnailOverlayRenderer.content.musicPlayButtonRenderer.playNavigationEndpoint.watchEndpoint")
				if !endpoint.Exists() {
					endpoint = renderer.Get("navigationEndpoint.watchEndpoint")
				}
				videoID := endpoint.Get("videoId").String()
				if videoID == "" {
					continue
				}

				return &models.Match{
					VideoID:  videoID,
					Title:    rendererText(renderer.Get("flexColumns.0.musicResponsiveListItemFlexColumnRenderer.text.runs")),
					Subtitle: rendererText(renderer.Get("flexColumns.1.musicResponsiveListItemFlexColumnRenderer.text.runs")),
				}, nil
			}
		}
	}

	return nil, shared.ErrTrackNotFound
}

func rendererText(runs gjson.Result) string {
	var b bytes.Buffer
	for _, run := range runs.Array() {
		b.WriteString(run.Get("text").String())
	}
	return strings.TrimSpace(b.String())
}

// MatchConfidence scores how closely a candidate title resembles the wanted title, from 0 to 1.
func MatchConfidence(want, got string) float64 {
	want, got = shared.NormalizeQuery(want), shared.NormalizeQuery(got)
	switch {
	case want == "" || got == "":
		return 0
	case want == got:
		return 1
	case strings.Contains(got, want) || strings.Contains(want, got):
		return 0.9
	case fuzzy.MatchFold(want, got):
		return 0.75
	}

	longest := max(utf8.RuneCountInString(want), utf8.RuneCountInString(got))
	score := 1 - float64(fuzzy.LevenshteinDistance(want, got))/float64(longest)
	return max(score, 0)
}
