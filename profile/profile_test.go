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
	"testing"
)

func TestNewFromMerge_CredentialsWin(t *testing.T) {
	config := mustParse(t, "[default]\nkey = config\nother = config-only", SourceConfig)
	credentials := mustParse(t, "[default]\nkey = credentials", SourceCredentials)

	merged := NewFromMerge(config, credentials, nil)
	if got, want := merged.Source(), SourceNone; got != want {
		t.Errorf("Source() = %v, want %v", got, want)
	}
	p, ok := merged.Profile("default")
	if !ok {
		t.Fatal("Profile(default) not found")
	}
	if got, want := p.PropertyValue("key"), "credentials"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
	if got, want := p.PropertyValue("other"), "config-only"; got != want {
		t.Errorf("PropertyValue(other) = %q, want %q", got, want)
	}
}

func TestNewFromMerge_DisjointProfiles(t *testing.T) {
	config := mustParse(t, "[profile dev]\nkey = value", SourceConfig)
	credentials := mustParse(t, "[prod]\nkey = value", SourceCredentials)

	merged := NewFromMerge(config, credentials, nil)
	if got, want := merged.ProfileCount(), 2; got != want {
		t.Fatalf("ProfileCount() = %d, want %d", got, want)
	}
	dev, ok := merged.Profile("dev")
	if !ok {
		t.Fatal("Profile(dev) not found")
	}
	if !dev.HasProfilePrefix() {
		t.Error("dev.HasProfilePrefix() = false, want true")
	}
	prod, ok := merged.Profile("prod")
	if !ok {
		t.Fatal("Profile(prod) not found")
	}
	if prod.HasProfilePrefix() {
		t.Error("prod.HasProfilePrefix() = true, want false")
	}
}

func TestNewFromMerge_NilSides(t *testing.T) {
	config := mustParse(t, "[default]\nkey = value", SourceConfig)

	tests := []struct {
		name         string
		config       *Collection
		credentials  *Collection
		wantProfiles int
	}{
		{name: "nil credentials", config: config, credentials: nil, wantProfiles: 1},
		{name: "nil config", config: nil, credentials: config, wantProfiles: 1},
		{name: "both nil", config: nil, credentials: nil, wantProfiles: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := NewFromMerge(tt.config, tt.credentials, nil)
			if got := merged.ProfileCount(); got != tt.wantProfiles {
				t.Errorf("ProfileCount() = %d, want %d", got, tt.wantProfiles)
			}
		})
	}
}

func TestNewFromMerge_InputsNotMutated(t *testing.T) {
	config := mustParse(t, "[default]\nkey = config", SourceConfig)
	credentials := mustParse(t, "[default]\nkey = credentials", SourceCredentials)

	NewFromMerge(config, credentials, nil)

	p, _ := config.Profile("default")
	if got, want := p.PropertyValue("key"), "config"; got != want {
		t.Errorf("config PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestNewFromMerge_SubPropertiesStomp(t *testing.T) {
	config := mustParse(t, "[default]\ns3 =\n    a = config\n    b = config-only", SourceConfig)
	credentials := mustParse(t, "[default]\ns3 =\n    a = credentials", SourceCredentials)

	merged := NewFromMerge(config, credentials, nil)
	p, _ := merged.Profile("default")
	prop, ok := p.Property("s3")
	if !ok {
		t.Fatal("Property(s3) not found")
	}
	if !prop.IsEmptyValued() {
		t.Error("IsEmptyValued() = false, want true")
	}
	if v, _ := prop.SubProperty("a"); v != "credentials" {
		t.Errorf("SubProperty(a) = %q, want %q", v, "credentials")
	}
	if v, _ := prop.SubProperty("b"); v != "config-only" {
		t.Errorf("SubProperty(b) = %q, want %q", v, "config-only")
	}
}

func TestNewFromMerge_EmptinessFollowsSource(t *testing.T) {
	// a credentials-file property with a value replaces a config-file
	// empty-valued property, emptiness flag included
	config := mustParse(t, "[default]\nkey =\n    a = 1", SourceConfig)
	credentials := mustParse(t, "[default]\nkey = value", SourceCredentials)

	merged := NewFromMerge(config, credentials, nil)
	p, _ := merged.Profile("default")
	prop, _ := p.Property("key")
	if prop.IsEmptyValued() {
		t.Error("IsEmptyValued() = true, want false")
	}
	if got, want := prop.Value(), "value"; got != want {
		t.Errorf("Value() = %q, want %q", got, want)
	}
}
