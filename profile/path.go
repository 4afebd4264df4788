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

package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath      = "~/.aws/config"
	defaultCredentialsPath = "~/.aws/credentials"

	configFileEnvVar      = "AWS_CONFIG_FILE"
	credentialsFileEnvVar = "AWS_SHARED_CREDENTIALS_FILE"
	profileNameEnvVar     = "AWS_PROFILE"
)

// ConfigFilePath resolves the path of the shared config file: the override
// if non-empty, otherwise the AWS_CONFIG_FILE environment variable,
// otherwise ~/.aws/config. A leading "~" segment is expanded to the current
// user's home directory.
func ConfigFilePath(override string) (string, error) {
	return resolveFilePath(override, configFileEnvVar, defaultConfigPath)
}

// CredentialsFilePath resolves the path of the shared credentials file: the
// override if non-empty, otherwise the AWS_SHARED_CREDENTIALS_FILE
// environment variable, otherwise ~/.aws/credentials. A leading "~" segment
// is expanded to the current user's home directory.
func CredentialsFilePath(override string) (string, error) {
	return resolveFilePath(override, credentialsFileEnvVar, defaultCredentialsPath)
}

// Name resolves the profile name to use: the AWS_PROFILE environment
// variable if set, otherwise the override if non-empty, otherwise "default".
func Name(override string) string {
	if name := os.Getenv(profileNameEnvVar); name != "" {
		return name
	}
	if override != "" {
		return override
	}
	return defaultProfileName
}

func resolveFilePath(override, envVar, def string) (string, error) {
	path := override
	if path == "" {
		path = os.Getenv(envVar)
	}
	if path == "" {
		path = def
	}
	return expandHomePath(path)
}

// expandHomePath normalizes directory separators and replaces a path
// consisting of, or starting with, the "~" segment with the current home
// directory. Embedded and cross-user "~" forms are passed through untouched.
func expandHomePath(path string) (string, error) {
	path = filepath.FromSlash(path)
	if path != "~" && !strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("profile: unable to resolve home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}
