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

package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/credkit/awsauth"
	"github.com/credkit/awsauth/internal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultIMDSEndpoint = "http://169.254.169.254"

	// imdsCredentialsPath lists the instance's role names; appending a role
	// name yields its security credentials document.
	imdsCredentialsPath = "/latest/meta-data/iam/security-credentials/"
)

// IMDSOptions configures an EC2 instance metadata service provider.
type IMDSOptions struct {
	// Endpoint overrides the metadata service address. Optional.
	Endpoint string
	// Client used for the metadata requests. Optional.
	Client *http.Client
	// Logger for debug output. Optional.
	Logger *slog.Logger
}

func (o *IMDSOptions) endpoint() string {
	if o == nil || o.Endpoint == "" {
		return defaultIMDSEndpoint
	}
	return o.Endpoint
}

func (o *IMDSOptions) client() *http.Client {
	if o == nil || o.Client == nil {
		return internal.DefaultClient()
	}
	return o.Client
}

func (o *IMDSOptions) logger() *slog.Logger {
	if o == nil {
		return internal.DefaultLogger(nil)
	}
	return internal.DefaultLogger(o.Logger)
}

// NewIMDSProvider returns a provider that sources credentials from the EC2
// instance metadata service. The instance's first role name is looked up,
// then that role's security credentials document is fetched. Results are
// cached until close to their expiry.
func NewIMDSProvider(opts *IMDSOptions) awsauth.CredentialsProvider {
	return awsauth.NewCachedProvider(&imdsProvider{
		endpoint: opts.endpoint(),
		client:   opts.client(),
		logger:   opts.logger(),
	}, nil)
}

type imdsProvider struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// imdsSecurityCredentials is the JSON document served per role name.
type imdsSecurityCredentials struct {
	Code            string `json:"Code"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	Token           string `json:"Token"`
	Expiration      string `json:"Expiration"`
}

func (p *imdsProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	ctx, span := tracer().Start(ctx, "credentials.IMDSFetch")
	defer span.End()

	role, err := p.getMetadata(ctx, imdsCredentialsPath)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: unable to list instance roles: %w", err)
	}
	// The listing is one role name per line; only the first is used.
	roleName, _, _ := strings.Cut(strings.TrimSpace(string(role)), "\n")
	if roleName == "" {
		err := fmt.Errorf("credentials: instance has no associated role")
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("aws.role_name", roleName))

	doc, err := p.getMetadata(ctx, imdsCredentialsPath+roleName)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: unable to fetch credentials for role %q: %w", roleName, err)
	}

	var sc imdsSecurityCredentials
	if err := json.Unmarshal(doc, &sc); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: invalid security credentials document: %w", err)
	}
	if sc.Code != "" && sc.Code != "Success" {
		err := fmt.Errorf("credentials: metadata service returned code %q for role %q", sc.Code, roleName)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	creds := &awsauth.Credentials{
		AccessKeyID:     sc.AccessKeyID,
		SecretAccessKey: sc.SecretAccessKey,
		SessionToken:    sc.Token,
		Source:          "Ec2InstanceMetadata",
	}
	if sc.Expiration != "" {
		expiry, err := time.Parse(time.RFC3339, sc.Expiration)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("credentials: invalid credential expiration %q: %w", sc.Expiration, err)
		}
		creds.Expiry = expiry
	}
	if !creds.HasKeys() {
		err := fmt.Errorf("credentials: security credentials document for role %q is missing keys", roleName)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p.logger.Debug("fetched instance credentials", "role", roleName)
	return creds, nil
}

func (p *imdsProvider) getMetadata(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := internal.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &awsauth.Error{Response: resp, Body: body}
	}
	return body, nil
}
