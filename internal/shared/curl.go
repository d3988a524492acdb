// Reading YouTube Music browser credentials out of a copied cURL request.
package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	curlHeaderRe = regexp.MustCompile(`-H\s+'([^']+)'|-H\s+"([^"]+)"`)
	curlCookieRe = regexp.MustCompile(`(?:-b|--cookie)\s+'([^']+)'|(?:-b|--cookie)\s+"([^"]+)"`)
)

// BrowserHeaders are the request headers YouTube Music needs to act as a signed-in browser.
type BrowserHeaders struct {
	Headers map[string]string
	Cookie  string
}

// ParseCurlFile reads a file holding a cURL command copied from the browser's network tab.
func ParseCurlFile(path string) (*BrowserHeaders, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read curl file: %w", err)
	}
	return ParseCurlCommand(content)
}

// ParseCurlCommand extracts headers and cookies from a cURL command.
// A cookie passed with -b wins over a Cookie header.
func ParseCurlCommand(data []byte) (*BrowserHeaders, error) {
	cmd := strings.ReplaceAll(string(data), "\\\n", " ")
	cmd = strings.ReplaceAll(cmd, "\\", "")

	bh := &BrowserHeaders{Headers: make(map[string]string)}
	var headerCookie string

	for _, m := range curlHeaderRe.FindAllStringSubmatch(cmd, -1) {
		key, value, ok := strings.Cut(firstGroup(m), ":")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if strings.EqualFold(key, "cookie") {
			if headerCookie == "" {
				headerCookie = value
			}
			continue
		}
		bh.Headers[key] = value
	}

	if m := curlCookieRe.FindStringSubmatch(cmd); m != nil {
		bh.Cookie = firstGroup(m)
	} else {
		bh.Cookie = headerCookie
	}

	if len(bh.Headers) == 0 && bh.Cookie == "" {
		return nil, fmt.Errorf("%w: no headers found in curl command", ErrInvalidInput)
	}
	return bh, nil
}

func firstGroup(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return g
		}
	}
	return ""
}

// ToHeadersRaw renders the headers as newline separated "Key: Value" lines.
func (b *BrowserHeaders) ToHeadersRaw() string {
	lines := make([]string, 0, len(b.Headers)+1)
	for key, value := range b.Headers {
		lines = append(lines, key+": "+value)
	}
	if b.Cookie != "" {
		lines = append(lines, "cookie: "+b.Cookie)
	}
	return strings.Join(lines, "\n")
}

// WriteAuthFile stores the headers as the JSON object the YouTube Music proxy reads through X-Auth-File.
// Header names are lower-cased.
func (b *BrowserHeaders) WriteAuthFile(path string) error {
	out := make(map[string]string, len(b.Headers)+1)
	for key, value := range b.Headers {
		out[strings.ToLower(key)] = value
	}
	if b.Cookie != "" {
		out["cookie"] = b.Cookie
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode auth file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write auth file: %w", err)
	}
	return nil
}
