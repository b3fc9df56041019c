// Package validator checks page submissions before they are queued. It
// enforces URL shape and field length limits and reports every failing
// field at once.
package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/keyword-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/keyword-search/pkg/config"
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

type Validator struct {
	limits config.IngestionConfig
}

func New(limits config.IngestionConfig) *Validator {
	return &Validator{limits: limits}
}

// Validate trims the request's fields in place and checks them.
func (v *Validator) Validate(req *ingestion.PageRequest) error {
	errs := make(map[string]string)

	req.URL = strings.TrimSpace(req.URL)
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)

	if msg := checkURL(req.URL); msg != "" {
		errs["url"] = msg
	}
	switch {
	case req.Title == "":
		errs["title"] = "title is required"
	case len(req.Title) > v.limits.MaxTitleLength:
		errs["title"] = fmt.Sprintf("title must be at most %d bytes", v.limits.MaxTitleLength)
	}
	if len(req.Description) > v.limits.MaxDescriptionLength {
		errs["description"] = fmt.Sprintf("description must be at most %d bytes", v.limits.MaxDescriptionLength)
	}
	switch {
	case strings.TrimSpace(req.Body) == "":
		errs["body"] = "body is required"
	case len(req.Body) > v.limits.MaxBodyLength:
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", v.limits.MaxBodyLength)
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateURL checks a page URL on its own, for removals.
func (v *Validator) ValidateURL(raw string) error {
	if msg := checkURL(strings.TrimSpace(raw)); msg != "" {
		return &ValidationError{Fields: map[string]string{"url": msg}}
	}
	return nil
}

func checkURL(raw string) string {
	if raw == "" {
		return "url is required"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "url is malformed"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "url must use http or https"
	}
	if u.Host == "" {
		return "url must be absolute"
	}
	return ""
}
