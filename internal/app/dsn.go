package app

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// safeDSN renders dsn for logs. SQLite keeps its path. Postgres keeps user,
// host, database and sslmode, and drops the password and other parameters.
func safeDSN(dsn string) (string, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return "", errors.New("empty dsn")
	}

	lowered := strings.ToLower(trimmed)
	if strings.HasPrefix(lowered, "file:") || strings.HasSuffix(lowered, ".db") {
		if strings.HasPrefix(lowered, "file:") {
			trimmed = trimmed[len("file:"):]
		}
		path, _, _ := strings.Cut(trimmed, "?")
		return "sqlite:" + path, nil
	}

	u, errParse := url.Parse(trimmed)
	if errParse != nil {
		return "", fmt.Errorf("parse dsn: %w", errParse)
	}
	if scheme := strings.ToLower(u.Scheme); scheme != "postgres" && scheme != "postgresql" {
		return "", fmt.Errorf("unsupported dsn scheme %q", u.Scheme)
	}
	safe := url.URL{Scheme: "postgres", Host: u.Host, Path: u.Path}
	if u.User != nil && u.User.Username() != "" {
		safe.User = url.User(u.User.Username())
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		safe.RawQuery = "sslmode=" + url.QueryEscape(mode)
	}
	return safe.String(), nil
}
