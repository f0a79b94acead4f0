package thread

import (
	"fmt"
	"net/url"
	"strconv"
)

// PageURL returns the URL of page n of the thread at base. The page number
// is carried in the "page" query parameter, replacing one already present.
func PageURL(base string, n int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid thread URL %q: %w", base, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid thread URL %q: scheme must be http or https", base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid thread URL %q: missing host", base)
	}

	q := u.Query()
	q.Set("page", strconv.Itoa(n))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
