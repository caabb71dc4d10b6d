package wizard

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"time"
)

var serviceNameRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]{0,62}[a-z0-9])?$`)

var checksumRegex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func validateURL(s string) error {
	if s == "" {
		return fmt.Errorf("download URL is required")
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("must be a valid URL")
	}
	return nil
}

func validateChecksum(s string) error {
	if s == "" {
		return nil
	}
	if !checksumRegex.MatchString(s) {
		return fmt.Errorf("must be 64 hex characters")
	}
	return nil
}

func validateServiceName(s string) error {
	if !serviceNameRegex.MatchString(s) {
		return fmt.Errorf("lowercase alphanumeric, dots, dashes, underscores")
	}
	return nil
}

func validateDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("must be a Go duration, e.g. 90s or 10m")
	}
	if d <= 0 {
		return fmt.Errorf("must be positive")
	}
	return nil
}

func validateCount(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1")
	}
	return nil
}
