package api

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	// ErrTransport covers network failures and non-2xx replies.
	ErrTransport = errors.New("events api unreachable")
	// ErrResponseShape covers replies that are not JSON or lack an events array.
	ErrResponseShape = errors.New("events api returned an unexpected response")
	// ErrInvalidInput is raised before any network call for bad user input.
	ErrInvalidInput = errors.New("invalid input")
)

// ICSExtensions are the accepted calendar file extensions.
var ICSExtensions = []string{".ics", ".ical", ".icalendar"}

// ValidateICSURL accepts absolute http(s) URLs with a host.
func ValidateICSURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: please provide your calendar", ErrInvalidInput)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: please enter a valid URL", ErrInvalidInput)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: unsupported URL scheme %q", ErrInvalidInput, u.Scheme)
	}
}

// ValidateICSFileName accepts .ics, .ical and .icalendar files.
func ValidateICSFileName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: please provide your calendar", ErrInvalidInput)
	}
	ext := strings.ToLower(path.Ext(name))
	for _, ok := range ICSExtensions {
		if ext == ok {
			return nil
		}
	}
	return fmt.Errorf("%w: please upload an ICS file", ErrInvalidInput)
}

// RedactURL hides path and query of a calendar URL for logging; personal
// feed URLs usually embed a secret token.
func RedactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "ics://...(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
