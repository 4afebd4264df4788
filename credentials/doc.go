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

// Package credentials constructs chains of AWS credential providers from
// shared config and credentials files, the process environment, the EC2
// instance metadata service, and STS.
//
// [NewProfileProvider] resolves a named profile from the merged shared
// config and credentials files and builds the provider the profile calls
// for: static credentials from the profile's own keys, or, when role_arn is
// set, an STS assume-role provider whose source credentials come from
// another profile (source_profile) or from a named external source
// (credential_source: Ec2InstanceMetadata or Environment).
//
// [NewDefaultChain] composes the standard lookup order of environment,
// shared profiles, then instance metadata, trying each source until one
// produces credentials.
package credentials
