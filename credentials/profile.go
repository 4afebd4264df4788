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
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/credkit/awsauth"
	"github.com/credkit/awsauth/internal"
	"github.com/credkit/awsauth/profile"
)

// Profile property names understood by the provider.
const (
	accessKeyIDProp      = "aws_access_key_id"
	secretAccessKeyProp  = "aws_secret_access_key"
	sessionTokenProp     = "aws_session_token"
	roleARNProp          = "role_arn"
	roleSessionNameProp  = "role_session_name"
	sourceProfileProp    = "source_profile"
	credentialSourceProp = "credential_source"
)

const (
	imdsCredentialSource        = "Ec2InstanceMetadata"
	environmentCredentialSource = "Environment"

	// STS rejects session names longer than this.
	maxSessionNameLen = 64

	defaultSessionNamePrefix = "awsauth-profile-config"
)

// ProfileOptions configures a shared-profile provider.
type ProfileOptions struct {
	// ProfileName selects the profile to resolve. Optional; the
	// AWS_PROFILE environment variable, then "default", apply otherwise.
	ProfileName string
	// ConfigFile overrides the shared config file path. Optional; the
	// AWS_CONFIG_FILE environment variable, then ~/.aws/config, apply
	// otherwise.
	ConfigFile string
	// CredentialsFile overrides the shared credentials file path.
	// Optional; the AWS_SHARED_CREDENTIALS_FILE environment variable, then
	// ~/.aws/credentials, apply otherwise.
	CredentialsFile string

	// Client used for any network calls the profile requires. Optional.
	Client *http.Client
	// Logger for debug output. Optional.
	Logger *slog.Logger

	// STSRegion and STSEndpoint configure the AssumeRole call made when
	// the profile sets role_arn. Optional.
	STSRegion   string
	STSEndpoint string
	// IMDSEndpoint overrides the metadata service address used when the
	// profile sets credential_source = Ec2InstanceMetadata. Optional.
	IMDSEndpoint string
}

// NewProfileProvider resolves a named profile from the merged shared config
// and credentials files and returns the provider it describes.
//
// A profile with role_arn set yields an assume-role provider whose source
// credentials come from source_profile or credential_source. Any other
// profile yields its own aws_access_key_id and aws_secret_access_key; those
// are re-read from disk on every Retrieve so that rotated credentials are
// picked up.
func NewProfileProvider(opts *ProfileOptions) (awsauth.CredentialsProvider, error) {
	if opts == nil {
		opts = &ProfileOptions{}
	}
	logger := internal.DefaultLogger(opts.Logger)

	configPath, err := profile.ConfigFilePath(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	credentialsPath, err := profile.CredentialsFilePath(opts.CredentialsFile)
	if err != nil {
		return nil, err
	}
	profileName := profile.Name(opts.ProfileName)

	merged, err := loadMergedProfiles(configPath, credentialsPath, logger)
	if err != nil {
		return nil, err
	}
	prof, ok := merged.Profile(profileName)
	if !ok {
		return nil, fmt.Errorf("credentials: could not find profile %q", profileName)
	}

	if roleARN := prof.PropertyValue(roleARNProp); roleARN != "" {
		return newAssumeRoleProvider(roleARN, prof, configPath, credentialsPath, opts, logger)
	}
	return &fileProvider{
		configPath:      configPath,
		credentialsPath: credentialsPath,
		profileName:     profileName,
		logger:          logger,
	}, nil
}

// loadMergedProfiles parses both shared files and merges them. A file that
// is missing or unparseable contributes nothing; only both failing is an
// error.
func loadMergedProfiles(configPath, credentialsPath string, logger *slog.Logger) (*profile.Collection, error) {
	parseOpts := &profile.ParseOptions{Logger: logger}
	config, err := profile.ParseFile(configPath, profile.SourceConfig, parseOpts)
	if err != nil {
		logger.Debug("unable to load config file profiles", "path", configPath, "error", err)
	}
	credentials, err := profile.ParseFile(credentialsPath, profile.SourceCredentials, parseOpts)
	if err != nil {
		logger.Debug("unable to load credentials file profiles", "path", credentialsPath, "error", err)
	}
	if config == nil && credentials == nil {
		return nil, errors.New("credentials: could not load or parse a credentials or config file")
	}
	return profile.NewFromMerge(config, credentials, logger), nil
}

func newAssumeRoleProvider(roleARN string, prof *profile.Profile, configPath, credentialsPath string, opts *ProfileOptions, logger *slog.Logger) (awsauth.CredentialsProvider, error) {
	sessionName := prof.PropertyValue(roleSessionNameProp)
	if len(sessionName) > maxSessionNameLen {
		logger.Warn("role_session_name exceeds the maximum length, truncating", "max", maxSessionNameLen)
		sessionName = sessionName[:maxSessionNameLen]
	}
	if sessionName == "" {
		sessionName = fmt.Sprintf("%s-%d", defaultSessionNamePrefix, os.Getpid())
	}

	var source awsauth.CredentialsProvider
	switch {
	case prof.PropertyValue(sourceProfileProp) != "":
		source = &fileProvider{
			configPath:      configPath,
			credentialsPath: credentialsPath,
			profileName:     prof.PropertyValue(sourceProfileProp),
			logger:          logger,
		}
	case prof.PropertyValue(credentialSourceProp) != "":
		credentialSource := prof.PropertyValue(credentialSourceProp)
		switch {
		case strings.EqualFold(credentialSource, imdsCredentialSource):
			source = NewIMDSProvider(&IMDSOptions{
				Endpoint: opts.IMDSEndpoint,
				Client:   opts.Client,
				Logger:   opts.Logger,
			})
		case strings.EqualFold(credentialSource, environmentCredentialSource):
			source = NewEnvironmentProvider()
		default:
			return nil, fmt.Errorf("credentials: profile %q has invalid credential_source %q", prof.Name(), credentialSource)
		}
	default:
		return nil, fmt.Errorf("credentials: profile %q sets role_arn but neither source_profile nor credential_source", prof.Name())
	}

	return NewSTSProvider(&STSOptions{
		RoleARN:        roleARN,
		SessionName:    sessionName,
		SourceProvider: source,
		Region:         opts.STSRegion,
		Endpoint:       opts.STSEndpoint,
		Client:         opts.Client,
		Logger:         opts.Logger,
	})
}

// fileProvider resolves a profile's own static credentials, re-reading the
// shared files on every call.
type fileProvider struct {
	configPath      string
	credentialsPath string
	profileName     string
	logger          *slog.Logger
}

func (p *fileProvider) Retrieve(ctx context.Context) (*awsauth.Credentials, error) {
	merged, err := loadMergedProfiles(p.configPath, p.credentialsPath, p.logger)
	if err != nil {
		return nil, err
	}
	prof, ok := merged.Profile(p.profileName)
	if !ok {
		return nil, fmt.Errorf("credentials: could not find profile %q", p.profileName)
	}
	return credentialsFromProfile(prof)
}

func credentialsFromProfile(prof *profile.Profile) (*awsauth.Credentials, error) {
	creds := &awsauth.Credentials{
		AccessKeyID:     prof.PropertyValue(accessKeyIDProp),
		SecretAccessKey: prof.PropertyValue(secretAccessKeyProp),
		SessionToken:    prof.PropertyValue(sessionTokenProp),
		Source:          "Profile",
	}
	if !creds.HasKeys() {
		return nil, fmt.Errorf("credentials: profile %q is missing %s or %s", prof.Name(), accessKeyIDProp, secretAccessKeyProp)
	}
	return creds, nil
}
