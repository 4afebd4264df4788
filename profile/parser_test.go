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
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustParse(t *testing.T, b string, src Source) *Collection {
	t.Helper()
	c, err := Parse([]byte(b), src, nil)
	if err != nil {
		t.Fatalf("Parse() = %v", err)
	}
	return c
}

func profileProperties(t *testing.T, c *Collection, profileName string) map[string]string {
	t.Helper()
	p, ok := c.Profile(profileName)
	if !ok {
		t.Fatalf("Profile(%q) not found", profileName)
	}
	got := map[string]string{}
	for _, name := range []string{"aws_access_key_id", "aws_secret_access_key", "key", "key2", "other"} {
		if prop, ok := p.Property(name); ok {
			got[name] = prop.Value()
		}
	}
	return got
}

func TestParse_Basic(t *testing.T) {
	input := `[default]
aws_access_key_id = AKID
aws_secret_access_key = SECRET

[profile dev]
key = value
`
	c := mustParse(t, input, SourceConfig)
	if got, want := c.ProfileCount(), 2; got != want {
		t.Fatalf("ProfileCount() = %d, want %d", got, want)
	}
	if got, want := c.Source(), SourceConfig; got != want {
		t.Errorf("Source() = %v, want %v", got, want)
	}

	want := map[string]string{
		"aws_access_key_id":     "AKID",
		"aws_secret_access_key": "SECRET",
	}
	if diff := cmp.Diff(want, profileProperties(t, c, "default")); diff != "" {
		t.Errorf("default profile mismatch (-want +got):\n%s", diff)
	}

	dev, ok := c.Profile("dev")
	if !ok {
		t.Fatal("Profile(dev) not found")
	}
	if !dev.HasProfilePrefix() {
		t.Error("HasProfilePrefix() = false, want true")
	}
	if got, want := dev.PropertyValue("key"), "value"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParse_ProfileKeywordRules(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		src          Source
		wantProfiles int
		wantProfile  string
	}{
		{
			name:         "config requires keyword for non-default",
			input:        "[foo]\nkey = value\n[profile bar]\nkey = value",
			src:          SourceConfig,
			wantProfiles: 1,
			wantProfile:  "bar",
		},
		{
			name:         "config accepts bare default",
			input:        "[default]\nkey = value",
			src:          SourceConfig,
			wantProfiles: 1,
			wantProfile:  "default",
		},
		{
			name:         "credentials rejects keyword",
			input:        "[profile foo]\nkey = value\n[bar]\nkey = value",
			src:          SourceCredentials,
			wantProfiles: 1,
			wantProfile:  "bar",
		},
		{
			name:         "credentials accepts bare names",
			input:        "[foo]\nkey = value",
			src:          SourceCredentials,
			wantProfiles: 1,
			wantProfile:  "foo",
		},
		{
			name:         "partial keyword match is part of the name",
			input:        "[profilefoo]\nkey = value",
			src:          SourceCredentials,
			wantProfiles: 1,
			wantProfile:  "profilefoo",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustParse(t, tt.input, tt.src)
			if got := c.ProfileCount(); got != tt.wantProfiles {
				t.Errorf("ProfileCount() = %d, want %d", got, tt.wantProfiles)
			}
			if _, ok := c.Profile(tt.wantProfile); !ok {
				t.Errorf("Profile(%q) not found", tt.wantProfile)
			}
		})
	}
}

func TestParse_DefaultProfileCollision(t *testing.T) {
	t.Run("prefixed first wins", func(t *testing.T) {
		input := "[profile default]\nkey = prefixed\n[default]\nkey = bare\nkey2 = dropped"
		c := mustParse(t, input, SourceConfig)
		p, ok := c.Profile("default")
		if !ok {
			t.Fatal("Profile(default) not found")
		}
		if got, want := p.PropertyValue("key"), "prefixed"; got != want {
			t.Errorf("PropertyValue(key) = %q, want %q", got, want)
		}
		// properties of the superseded bare declaration are discarded
		if _, ok := p.Property("key2"); ok {
			t.Error("Property(key2) found, want it dropped")
		}
	})
	t.Run("prefixed second replaces", func(t *testing.T) {
		input := "[default]\nkey = bare\nkey2 = dropped\n[profile default]\nkey = prefixed"
		c := mustParse(t, input, SourceConfig)
		p, ok := c.Profile("default")
		if !ok {
			t.Fatal("Profile(default) not found")
		}
		if !p.HasProfilePrefix() {
			t.Error("HasProfilePrefix() = false, want true")
		}
		if got, want := p.PropertyValue("key"), "prefixed"; got != want {
			t.Errorf("PropertyValue(key) = %q, want %q", got, want)
		}
		if _, ok := p.Property("key2"); ok {
			t.Error("Property(key2) found, want it dropped")
		}
	})
	t.Run("same spelling accumulates", func(t *testing.T) {
		input := "[default]\nkey = value\n[default]\nkey2 = value2"
		c := mustParse(t, input, SourceConfig)
		p, _ := c.Profile("default")
		if got, want := p.PropertyCount(), 2; got != want {
			t.Errorf("PropertyCount() = %d, want %d", got, want)
		}
	})
}

func TestParse_Continuation(t *testing.T) {
	input := "[default]\nkey = v1\n    v2\n\tv3"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	if got, want := p.PropertyValue("key"), "v1\nv2\nv3"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParse_ContinuationKeepsComments(t *testing.T) {
	// comments cannot be made on continuation lines; they fold into the value
	input := "[default]\nkey = v1\n    v2 # not a comment"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	if got, want := p.PropertyValue("key"), "v1\nv2 # not a comment"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParse_SubProperties(t *testing.T) {
	input := "[default]\ns3 =\n    max_concurrent_requests = 20\n    max_queue_size = 500"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	prop, ok := p.Property("s3")
	if !ok {
		t.Fatal("Property(s3) not found")
	}
	if !prop.IsEmptyValued() {
		t.Error("IsEmptyValued() = false, want true")
	}
	if got, want := prop.Value(), ""; got != want {
		t.Errorf("Value() = %q, want %q", got, want)
	}
	if got, want := prop.SubPropertyCount(), 2; got != want {
		t.Errorf("SubPropertyCount() = %d, want %d", got, want)
	}
	if v, _ := prop.SubProperty("max_concurrent_requests"); v != "20" {
		t.Errorf("SubProperty(max_concurrent_requests) = %q, want %q", v, "20")
	}
	if v, _ := prop.SubProperty("max_queue_size"); v != "500" {
		t.Errorf("SubProperty(max_queue_size) = %q, want %q", v, "500")
	}
}

func TestParse_SubPropertyOverride(t *testing.T) {
	input := "[default]\ns3 =\n    a = 1\n    a = 2"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	prop, _ := p.Property("s3")
	if v, _ := prop.SubProperty("a"); v != "2" {
		t.Errorf("SubProperty(a) = %q, want %q", v, "2")
	}
}

func TestParse_Comments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "whitespace-prefixed hash comment stripped",
			input: "[default]\nkey = value # comment",
			want:  "value",
		},
		{
			name:  "whitespace-prefixed semicolon comment stripped",
			input: "[default]\nkey = value\t; comment",
			want:  "value",
		},
		{
			name:  "embedded comment token kept",
			input: "[default]\nkey = value#nota ;comment",
			want:  "value#nota",
		},
		{
			name:  "comment lines ignored",
			input: "# leading\n; noise\n[default]\nkey = value",
			want:  "value",
		},
		{
			name:  "declaration comment needs no whitespace",
			input: "[default]# comment\nkey = value",
			want:  "value",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustParse(t, tt.input, SourceConfig)
			p, ok := c.Profile("default")
			if !ok {
				t.Fatal("Profile(default) not found")
			}
			if got := p.PropertyValue("key"); got != tt.want {
				t.Errorf("PropertyValue(key) = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParse_Recoverable(t *testing.T) {
	tests := []struct {
		name  string
		input string
		src   Source
	}{
		{
			name:  "invalid profile name characters",
			input: "[base^]\nkey = value\n[default]\nkey = value",
			src:   SourceCredentials,
		},
		{
			name:  "empty profile name",
			input: "[]\n[default]\nkey = value",
			src:   SourceCredentials,
		},
		{
			name:  "invalid property key",
			input: "[default]\nbad^key = value\nkey = value",
			src:   SourceCredentials,
		},
		{
			name:  "property after failed profile declaration",
			input: "[profile foo]\norphan = value\n[default]\nkey = value",
			src:   SourceCredentials,
		},
		{
			name:  "invalid sub-property key",
			input: "[default]\nkey =\n    bad^key = value\nkey = value",
			src:   SourceCredentials,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustParse(t, tt.input, tt.src)
			p, ok := c.Profile("default")
			if !ok {
				t.Fatal("Profile(default) not found")
			}
			if got, want := p.PropertyValue("key"), "value"; got != want {
				t.Errorf("PropertyValue(key) = %q, want %q", got, want)
			}
		})
	}
}

func TestParse_FatalErrors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		src      Source
		wantLine int
	}{
		{
			name:     "missing closing bracket",
			input:    "[default",
			src:      SourceConfig,
			wantLine: 1,
		},
		{
			name:     "property before any profile",
			input:    "key = value",
			src:      SourceConfig,
			wantLine: 1,
		},
		{
			name:     "missing assignment operator",
			input:    "[default]\nkey",
			src:      SourceConfig,
			wantLine: 2,
		},
		{
			name:     "assignment with no key",
			input:    "[default]\n= value",
			src:      SourceConfig,
			wantLine: 2,
		},
		{
			name:     "continuation without a property",
			input:    "[default]\n    orphan continuation",
			src:      SourceConfig,
			wantLine: 2,
		},
		{
			name:     "continuation before any profile",
			input:    "    orphan continuation",
			src:      SourceConfig,
			wantLine: 1,
		},
		{
			name:     "sub-property missing assignment",
			input:    "[default]\nkey =\n    no assignment here",
			src:      SourceConfig,
			wantLine: 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Parse([]byte(tt.input), tt.src, nil)
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			if c != nil {
				t.Error("Parse() returned a collection alongside a fatal error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("Parse() error type = %T, want *ParseError", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("ParseError.Line = %d, want %d", pe.Line, tt.wantLine)
			}
		})
	}
}

func TestParse_PropertyRedefinitionWins(t *testing.T) {
	input := "[default]\nkey = first\nkey = second"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	if got, want := p.PropertyValue("key"), "second"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParse_WindowsLineEndings(t *testing.T) {
	input := "[default]\r\nkey = value\r\n"
	c := mustParse(t, input, SourceConfig)
	p, _ := c.Profile("default")
	if got, want := p.PropertyValue("key"), "value"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	c := mustParse(t, "", SourceConfig)
	if got := c.ProfileCount(); got != 0 {
		t.Errorf("ProfileCount() = %d, want 0", got)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[default]\nkey = value"), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := ParseFile(path, SourceConfig, nil)
	if err != nil {
		t.Fatalf("ParseFile() = %v", err)
	}
	p, ok := c.Profile("default")
	if !ok {
		t.Fatal("Profile(default) not found")
	}
	if got, want := p.PropertyValue("key"), "value"; got != want {
		t.Errorf("PropertyValue(key) = %q, want %q", got, want)
	}
}

func TestParseFile_Missing(t *testing.T) {
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope"), SourceConfig, nil); err == nil {
		t.Fatal("ParseFile() succeeded, want error")
	}
}

func TestParseFile_ErrorCarriesPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config")
	if err := os.WriteFile(path, []byte("[default"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := ParseFile(path, SourceConfig, nil)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("ParseFile() error type = %T, want *ParseError", err)
	}
	if pe.Path != path {
		t.Errorf("ParseError.Path = %q, want %q", pe.Path, path)
	}
}
