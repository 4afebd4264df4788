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
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/credkit/awsauth"
	"github.com/credkit/awsauth/internal"
	"github.com/credkit/awsauth/internal/xmlnode"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultSTSEndpoint = "https://sts.amazonaws.com/"
	defaultSTSRegion   = "us-east-1"

	stsAPIVersion = "2011-06-15"

	// STS accepts 900s to 12h; the minimum keeps the blast radius of a
	// leaked session small.
	defaultDurationSeconds = 900
)

// STSOptions configures an assume-role provider.
type STSOptions struct {
	// RoleARN is the role to assume. Required.
	RoleARN string
	// SessionName identifies the assumed-role session. Required.
	SessionName string
	// SourceProvider supplies the credentials that sign the AssumeRole
	// call. Required.
	SourceProvider awsauth.CredentialsProvider

	// Region used in the signature's credential scope. Optional, defaults
	// to us-east-1.
	Region string
	// Endpoint overrides the STS endpoint. Optional.
	Endpoint string
	// DurationSeconds is the requested session lifetime. Optional,
	// defaults to 900.
	DurationSeconds int
	// Client used for the AssumeRole call. Optional.
	Client *http.Client
	// Logger for debug output. Optional.
	Logger *slog.Logger
}

func (o *STSOptions) validate() error {
	if o == nil {
		return errors.New("credentials: STS options must be provided")
	}
	if o.RoleARN == "" {
		return errors.New("credentials: STS role ARN must be provided")
	}
	if o.SessionName == "" {
		return errors.New("credentials: STS session name must be provided")
	}
	if o.SourceProvider == nil {
		return errors.New("credentials: STS source provider must be provided")
	}
	return nil
}

func (o *STSOptions) endpoint() string {
	if o.Endpoint == "" {
		return defaultSTSEndpoint
	}
	return o.Endpoint
}

func (o *STSOptions) region() string {
	if o.Region == "" {
		return defaultSTSRegion
	}
	return o.Region
}

func (o *STSOptions) durationSeconds() int {
	if o.DurationSeconds == 0 {
		return defaultDurationSeconds
	}
	return o.DurationSeconds
}

func (o *STSOptions) client() *http.Client {
	if o.Client == nil {
		return internal.DefaultClient()
	}
	return o.Client
}

// NewSTSProvider returns a provider that assumes the configured role via
// the STS AssumeRole Query API, signing the call with credentials from the
// source provider. Results are cached until close to their expiry.
func NewSTSProvider(opts *STSOptions) (awsauth.CredentialsProvider, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return awsauth.NewCachedProvider(&stsProvider{
		roleARN:         opts.RoleARN,
		sessionName:     opts.SessionName,
		source:          opts.SourceProvider,
		region:          opts.region(),
		endpoint:        opts.endpoint(),
		durationSeconds: opts.durationSeconds(),
		client:          opts.client(),
		logger:          internal.DefaultLogger(opts.Logger),
	}, nil), nil
}

type stsProvider struct {
	roleARN         string
	sessionName     string
	source          awsauth.CredentialsProvider
	region          string
	endpoint        string
	durationSeconds int
	client          *http.Client
	logger          *slog.Logger
}

func (p *stsProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	ctx, span := tracer().Start(ctx, "credentials.AssumeRole")
	defer span.End()
	span.SetAttributes(attribute.String("aws.role_arn", p.roleARN))

	sourceCreds, err := p.source.Retrieve(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: unable to resolve source credentials for role %q: %w", p.roleARN, err)
	}

	form := url.Values{}
	form.Set("Action", "AssumeRole")
	form.Set("Version", stsAPIVersion)
	form.Set("RoleArn", p.roleARN)
	form.Set("RoleSessionName", p.sessionName)
	form.Set("DurationSeconds", strconv.Itoa(p.durationSeconds))
	body := form.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(body))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	signer := &requestSigner{region: p.region, credentials: sourceCreds}
	if err := signer.signRequest(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: unable to sign AssumeRole request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("credentials: AssumeRole request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := internal.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := &awsauth.Error{Response: resp, Body: respBody}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	creds, err := parseAssumeRoleResponse(respBody)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	p.logger.Debug("assumed role", "role_arn", p.roleARN, "session_name", p.sessionName)
	return creds, nil
}

// parseAssumeRoleResponse extracts the session credentials from an
// AssumeRoleResponse document.
func parseAssumeRoleResponse(doc []byte) (*awsauth.Credentials, error) {
	creds := &awsauth.Credentials{Source: "STS"}
	var found bool

	parser := xmlnode.New(doc)
	err := parser.Parse(func(p *xmlnode.Parser, root *xmlnode.Node) error {
		if !bytes.Equal(root.Name, []byte("AssumeRoleResponse")) {
			return fmt.Errorf("credentials: unexpected STS response element %q", root.Name)
		}
		return p.NodeTraverse(root, func(p *xmlnode.Parser, n *xmlnode.Node) error {
			if !bytes.Equal(n.Name, []byte("AssumeRoleResult")) {
				return nil
			}
			return p.NodeTraverse(n, func(p *xmlnode.Parser, n *xmlnode.Node) error {
				if !bytes.Equal(n.Name, []byte("Credentials")) {
					return nil
				}
				found = true
				return p.NodeTraverse(n, func(p *xmlnode.Parser, n *xmlnode.Node) error {
					body, err := p.NodeBody(n)
					if err != nil {
						return err
					}
					switch string(n.Name) {
					case "AccessKeyId":
						creds.AccessKeyID = string(body)
					case "SecretAccessKey":
						creds.SecretAccessKey = string(body)
					case "SessionToken":
						creds.SessionToken = string(body)
					case "Expiration":
						expiry, err := time.Parse(time.RFC3339, string(body))
						if err != nil {
							return fmt.Errorf("credentials: invalid session expiration %q: %w", body, err)
						}
						creds.Expiry = expiry
					}
					return nil
				})
			})
		})
	})
	if err != nil {
		return nil, fmt.Errorf("credentials: unable to parse AssumeRole response: %w", err)
	}
	if !found || !creds.HasKeys() {
		return nil, errors.New("credentials: AssumeRole response is missing session credentials")
	}
	return creds, nil
}
