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

	"github.com/credkit/awsauth"
)

// NewStaticProvider returns a provider that always returns the given
// credentials.
func NewStaticProvider(creds *awsauth.Credentials) awsauth.CredentialsProvider {
	return staticProvider{creds: creds}
}

type staticProvider struct {
	creds *awsauth.Credentials
}

func (p staticProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	if !p.creds.HasKeys() {
		return nil, errors.New("credentials: static credentials are missing an access key ID or secret access key")
	}
	return p.creds, nil
}
