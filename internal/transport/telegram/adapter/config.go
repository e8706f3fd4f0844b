package adapter

import (
	"net/http"
	"strings"
	"time"
)

const defaultAPIURL = "https://api.telegram.org"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// LogChat receives forwarded log lines; "<chat>" or "<chat>:<thread>".
	LogChat string
	// APIURL overrides the Bot API base url (tests, local bot api server).
	APIURL string
	// RequestTimeout bounds every Bot API call.
	RequestTimeout time.Duration
	// Offline skips the getMe handshake; used by tests.
	Offline bool
}

func (c Config) withDefaults() Config {
	if c.PollTimeout <= 0 {
		c.PollTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.APIURL == "" {
		c.APIURL = defaultAPIURL
	}
	return c
}

func (c Config) httpClient() *http.Client {
	// long polling holds the request open for PollTimeout
	return &http.Client{Timeout: c.RequestTimeout + c.PollTimeout}
}
