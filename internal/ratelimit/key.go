package ratelimit

import "fmt"

// Key builds the limiter key for a route and device fingerprint.
func Key(method, route, fingerprint string) string {
	if route == "" || fingerprint == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%s", method, route, fingerprint)
}
