package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/resilience"
)

// Kind classifies a validation failure.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindUnresolvable Kind = "unresolvable_domain"
)

// Error is a terminal validation failure.
type Error struct {
	Kind  Kind
	Input string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("domain: %s %q: %v", e.Kind, e.Input, e.Err)
	}
	return fmt.Sprintf("domain: %s %q", e.Kind, e.Input)
}

func (e *Error) Unwrap() error { return e.Err }

// Resolver looks up host addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Config configures a Validator.
type Config struct {
	// Resolve enables the DNS existence check. Offline runs disable it.
	Resolve bool
	// Timeout bounds each lookup attempt.
	Timeout time.Duration
	Retry   resilience.RetryConfig
}

// Validator normalizes queries and confirms the resulting domain exists.
type Validator struct {
	cfg      Config
	resolver Resolver
}

// NewValidator creates a Validator. A nil resolver uses net.DefaultResolver.
func NewValidator(cfg Config, resolver Resolver) *Validator {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
		cfg.Retry.MaxAttempts = 2
	}
	cfg.Retry.ShouldRetry = temporaryDNS
	return &Validator{cfg: cfg, resolver: resolver}
}

// Validate returns the canonical domain for query, or a *Error.
func (v *Validator) Validate(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", &Error{Kind: KindInvalidInput, Input: query, Err: eris.New("query is empty")}
	}

	d := Normalize(query)
	if d == "" {
		return "", &Error{Kind: KindInvalidInput, Input: query, Err: eris.New("no domain-like token")}
	}
	if !v.cfg.Resolve {
		return d, nil
	}

	var lastErr error
	for _, host := range []string{d, "www." + d} {
		addrs, err := resilience.DoVal(ctx, v.cfg.Retry, func(ctx context.Context) ([]string, error) {
			lookupCtx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
			defer cancel()
			return v.resolver.LookupHost(lookupCtx, host)
		})
		if err == nil && len(addrs) > 0 {
			return d, nil
		}
		if ctx.Err() != nil {
			return "", eris.Wrap(ctx.Err(), "domain: resolve")
		}
		lastErr = err
		zap.L().Debug("domain: lookup failed", zap.String("host", host), zap.Error(err))
	}

	if lastErr == nil {
		lastErr = eris.New("no addresses")
	}
	return "", &Error{Kind: KindUnresolvable, Input: d, Err: lastErr}
}

// temporaryDNS retries only lookups that may succeed later. NXDOMAIN is final.
func temporaryDNS(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return false
		}
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	return resilience.IsTransient(err)
}
