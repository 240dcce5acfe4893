// Utilities for turning a browser "Copy as cURL" command into a cookie file.
package shared

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRegex = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRegex = regexp.MustCompile(`-b\s+'([^']+)'|-b\s+"([^"]+)"`)
	curlURLRegex    = regexp.MustCompile(`https?://[^\s'"]+`)
)

// CurlRequest is the subset of a cURL command needed to rebuild a session.
type CurlRequest struct {
	URL     string
	Headers map[string]string
	Cookie  string
}

// ParseCurlFile reads a file containing a cURL command.
func ParseCurlFile(path string) (*CurlRequest, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}

	return ParseCurlCommand(content)
}

// ParseCurlCommand parses a cURL command string and extracts its URL, headers and cookie.
func ParseCurlCommand(data []byte) (*CurlRequest, error) {
	curlCmd := string(data)
	curlCmd = strings.ReplaceAll(curlCmd, "\\\n", " ")
	curlCmd = strings.ReplaceAll(curlCmd, "\\", "")

	headers := make(map[string]string)
	var cookie string

	for _, match := range curlHeaderRegex.FindAllStringSubmatch(curlCmd, -1) {
		parts := strings.SplitN(firstGroup(match), ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if strings.EqualFold(key, "cookie") {
			if cookie == "" {
				cookie = value
			}
			continue
		}
		headers[key] = value
	}

	// -b takes precedence over a Cookie header
	if m := curlCookieRegex.FindStringSubmatch(curlCmd); m != nil {
		cookie = firstGroup(m)
	}

	if len(headers) == 0 && cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}

	return &CurlRequest{
		URL:     curlURLRegex.FindString(curlCmd),
		Headers: headers,
		Cookie:  cookie,
	}, nil
}

// CookieJar converts the request cookie into session cookies scoped to domain.
func (c *CurlRequest) CookieJar(domain string) CookieJar {
	var jar CookieJar
	for _, pair := range strings.Split(c.Cookie, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || name == "" {
			continue
		}
		jar = append(jar, Cookie{
			Domain:            domain,
			IncludeSubdomains: strings.HasPrefix(domain, "."),
			Path:              "/",
			Secure:            true,
			Name:              name,
			Value:             value,
		})
	}
	return jar
}

func firstGroup(match []string) string {
	if match[1] != "" {
		return match[1]
	}
	return match[2]
}
