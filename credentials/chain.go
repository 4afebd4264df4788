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
	"errors"
	"fmt"

	"github.com/credkit/awsauth"
	"github.com/credkit/awsauth/internal"
)

// NewChainProvider returns a provider that tries each given provider in
// order, returning the first credentials successfully retrieved. Retrieve
// fails only when every provider in the chain has failed.
func NewChainProvider(providers ...awsauth.CredentialsProvider) awsauth.CredentialsProvider {
	return &chainProvider{providers: providers}
}

type chainProvider struct {
	providers []awsauth.CredentialsProvider
}

func (p *chainProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	var errs []error
	for _, provider := range p.providers {
		creds, err := provider.Retrieve(ctx)
		if err == nil {
			return creds, nil
		}
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("credentials: no provider in the chain returned credentials: %w", errors.Join(errs...))
}

// NewDefaultChain returns the standard credential lookup chain: the process
// environment, then the shared profile files, then the EC2 instance
// metadata service. A profile provider that cannot be constructed, for
// example because neither shared file exists, is left out of the chain.
func NewDefaultChain(opts *ProfileOptions) awsauth.CredentialsProvider {
	if opts == nil {
		opts = &ProfileOptions{}
	}
	logger := internal.DefaultLogger(opts.Logger)

	providers := []awsauth.CredentialsProvider{NewEnvironmentProvider()}
	if profileProvider, err := NewProfileProvider(opts); err != nil {
		logger.Debug("default chain: profile provider unavailable", "error", err)
	} else {
		providers = append(providers, profileProvider)
	}
	providers = append(providers, NewIMDSProvider(&IMDSOptions{
		Endpoint: opts.IMDSEndpoint,
		Client:   opts.Client,
		Logger:   opts.Logger,
	}))
	return NewChainProvider(providers...)
}
