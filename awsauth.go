// Copyright 2024 CredKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package awsauth provides the core types used to resolve AWS credentials
// from shared configuration files, the environment, the EC2 instance
// metadata service, and STS.
package awsauth

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const defaultExpiryDelta = 10 * time.Second

// for testing
var timeNow = time.Now

// CredentialsProvider specifies an interface for anything that can return
// credentials.
type CredentialsProvider interface {
	// Retrieve returns Credentials or an error. The Credentials returned
	// must be safe to use concurrently and must not be modified. The
	// context provided must be sent along to any requests that are made in
	// the implementing code.
	Retrieve(context.Context) (*Credentials, error)
}

// Credentials holds an AWS access key pair and optional session token used
// to sign requests. All fields are considered read-only.
type Credentials struct {
	// AccessKeyID is the AWS access key identifier.
	AccessKeyID string
	// SecretAccessKey is the secret paired with AccessKeyID.
	SecretAccessKey string
	// SessionToken is set for temporary credentials, such as those vended
	// by STS or the instance metadata service.
	SessionToken string
	// Expiry is the time the credentials are set to expire. A zero value
	// means the credentials do not expire.
	Expiry time.Time
	// Source describes which provider produced the credentials.
	Source string
}

// HasKeys reports whether both the access key ID and the secret access key
// are present.
func (c *Credentials) HasKeys() bool {
	return c != nil && c.AccessKeyID != "" && c.SecretAccessKey != ""
}

// IsValid reports that Credentials are non-nil, have keys, and have not
// expired. Credentials are considered expired if Expiry has passed or will
// pass in the next 10 seconds.
func (c *Credentials) IsValid() bool {
	return c.isValidWithEarlyExpiry(defaultExpiryDelta)
}

func (c *Credentials) isValidWithEarlyExpiry(earlyExpiry time.Duration) bool {
	if !c.HasKeys() {
		return false
	}
	if c.Expiry.IsZero() {
		return true
	}
	return !c.Expiry.Round(0).Add(-earlyExpiry).Before(timeNow())
}

// CachedProviderOptions provides options for configuring a cached
// [CredentialsProvider].
type CachedProviderOptions struct {
	// DisableAutoRefresh makes the provider always return the same
	// credentials, even if they are expired.
	DisableAutoRefresh bool
	// ExpireEarly configures the amount of time before credentials expire
	// that they should be refreshed.
	ExpireEarly time.Duration
}

func (cpo *CachedProviderOptions) autoRefresh() bool {
	if cpo == nil {
		return true
	}
	return !cpo.DisableAutoRefresh
}

func (cpo *CachedProviderOptions) expireEarly() time.Duration {
	if cpo == nil || cpo.ExpireEarly == 0 {
		return defaultExpiryDelta
	}
	return cpo.ExpireEarly
}

// NewCachedProvider wraps a [CredentialsProvider] to cache the credentials
// returned by the underlying provider.
func NewCachedProvider(p CredentialsProvider, opts *CachedProviderOptions) CredentialsProvider {
	if cp, ok := p.(*cachedProvider); ok {
		return cp
	}
	return &cachedProvider{
		p:           p,
		autoRefresh: opts.autoRefresh(),
		expireEarly: opts.expireEarly(),
	}
}

type cachedProvider struct {
	p           CredentialsProvider
	autoRefresh bool
	expireEarly time.Duration

	mu     sync.Mutex
	cached *Credentials
}

func (c *cachedProvider) Retrieve(ctx context.Context) (*Credentials, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached.isValidWithEarlyExpiry(c.expireEarly) || (c.cached != nil && !c.autoRefresh) {
		return c.cached, nil
	}
	creds, err := c.p.Retrieve(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = creds
	return creds, nil
}

// Error is an error associated with retrieving [Credentials] over HTTP. It
// can hold useful additional details for debugging.
type Error struct {
	// Response is the HTTP response associated with the error. The body
	// will always be already closed and consumed.
	Response *http.Response
	// Body is the HTTP response body.
	Body []byte
	// Err is the underlying wrapped error.
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("awsauth: cannot fetch credentials: %v\nResponse: %s", e.Response.StatusCode, e.Body)
}

// Temporary returns true if the error is considered temporary and may be
// able to be retried.
func (e *Error) Temporary() bool {
	if e.Response == nil {
		return false
	}
	sc := e.Response.StatusCode
	return sc == 500 || sc == 503 || sc == 408 || sc == 429
}

func (e *Error) Unwrap() error {
	return e.Err
}
