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
	"os"

	"github.com/credkit/awsauth"
)

const (
	accessKeyIDEnvVar     = "AWS_ACCESS_KEY_ID"
	secretAccessKeyEnvVar = "AWS_SECRET_ACCESS_KEY"
	sessionTokenEnvVar    = "AWS_SESSION_TOKEN"
)

// NewEnvironmentProvider returns a provider that sources credentials from
// the AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY and AWS_SESSION_TOKEN
// environment variables. The environment is read on every call to Retrieve.
func NewEnvironmentProvider() awsauth.CredentialsProvider {
	return environmentProvider{}
}

type environmentProvider struct{}

func (environmentProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	creds := &awsauth.Credentials{
		AccessKeyID:     os.Getenv(accessKeyIDEnvVar),
		SecretAccessKey: os.Getenv(secretAccessKeyEnvVar),
		SessionToken:    os.Getenv(sessionTokenEnvVar),
		Source:          "Environment",
	}
	if !creds.HasKeys() {
		return nil, errors.New("credentials: AWS_ACCESS_KEY_ID or AWS_SECRET_ACCESS_KEY is not set")
	}
	return creds, nil
}
