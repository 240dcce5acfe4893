// Utilities for Netscape cookie files.
package shared

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

const netscapeHeader = "# Netscape HTTP Cookie File"

// Cookie is one entry of a Netscape cookie file.
type Cookie struct {
	Domain            string
	IncludeSubdomains bool
	Path              string
	Secure            bool
	Expires           int64 // unix seconds, 0 for session cookies
	Name              string
	Value             string
}

// Expired reports whether the cookie has an expiry in the past relative to now.
// Session cookies (zero expiry) never expire.
func (c Cookie) Expired(now time.Time) bool {
	return c.Expires > 0 && c.Expires < now.Unix()
}

// CookieJar is the parsed content of a cookie file.
type CookieJar []Cookie

// LoadCookieFile reads a Netscape cookie file from path.
func LoadCookieFile(path string) (CookieJar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissingCookies, path)
		}
		return nil, fmt.Errorf("failed to open cookie file: %w", err)
	}
	defer f.Close()

	return ParseNetscapeCookies(f)
}

// ParseNetscapeCookies parses the tab separated Netscape cookie format.
//
// Blank lines, comments and lines with fewer than seven fields are skipped, except
// the "#HttpOnly_" domain prefix which curl and browsers use to mark HTTP-only
// cookies. An empty or non-numeric expiry is read as a session cookie.
func ParseNetscapeCookies(r io.Reader) (CookieJar, error) {
	var jar CookieJar
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}
		if strings.HasPrefix(text, "#HttpOnly_") {
			text = strings.TrimPrefix(text, "#HttpOnly_")
		} else if strings.HasPrefix(text, "#") {
			continue
		}

		fields := strings.Split(text, "\t")
		if len(fields) < 7 {
			continue
		}

		// yt-dlp writes session cookies with an empty expiry.
		expires, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
		if err != nil {
			expires = 0
		}

		jar = append(jar, Cookie{
			Domain:            fields[0],
			IncludeSubdomains: strings.EqualFold(fields[1], "TRUE"),
			Path:              fields[2],
			Secure:            strings.EqualFold(fields[3], "TRUE"),
			Expires:           expires,
			Name:              fields[5],
			Value:             strings.Join(fields[6:], "\t"),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	return jar, nil
}

// Valid returns the cookies that have not expired at now.
func (j CookieJar) Valid(now time.Time) CookieJar {
	valid := make(CookieJar, 0, len(j))
	for _, c := range j {
		if !c.Expired(now) {
			valid = append(valid, c)
		}
	}
	return valid
}

// Header joins the cookies into a Cookie header value.
func (j CookieJar) Header() string {
	parts := make([]string, 0, len(j))
	for _, c := range j {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}

// Marshal renders the jar in Netscape format.
func (j CookieJar) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(netscapeHeader + "\n\n")
	for _, c := range j {
		fmt.Fprintf(&buf, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.Domain, boolField(c.IncludeSubdomains), c.Path, boolField(c.Secure), c.Expires, c.Name, c.Value)
	}
	return buf.Bytes()
}

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
