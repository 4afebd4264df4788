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

// Package profile parses AWS shared config and credentials files into a
// structured collection of profiles and merges collections from the two
// sources under the precedence rules the AWS CLI and SDKs follow.
//
// A [Collection] is built once from a single file or buffer with [Parse] or
// [ParseFile], optionally combined with a second collection via
// [NewFromMerge], and is read-only afterwards.
package profile

import (
	"log/slog"

	"github.com/credkit/awsauth/internal"
)

// Source describes which kind of file a [Collection] was parsed from. The
// source affects parsing rules, such as whether the "profile" keyword is
// accepted on declarations, and default-profile precedence during merges.
type Source int

const (
	// SourceNone is the source of a merged collection.
	SourceNone Source = iota
	// SourceConfig is a shared config file (~/.aws/config).
	SourceConfig
	// SourceCredentials is a shared credentials file (~/.aws/credentials).
	SourceCredentials
)

// Property is a key-value pair within a [Profile]. A property declared with
// an empty value may carry sub-properties declared on indented continuation
// lines.
type Property struct {
	name          string
	value         string
	emptyValued   bool
	subProperties map[string]string
}

func newProperty(name, value string) *Property {
	return &Property{
		name:          name,
		value:         value,
		emptyValued:   value == "",
		subProperties: make(map[string]string),
	}
}

// Name returns the property's key.
func (p *Property) Name() string {
	return p.name
}

// Value returns the property's value. Continuation lines accumulate into the
// value separated by newlines.
func (p *Property) Value() string {
	return p.value
}

// IsEmptyValued reports whether the property was declared with an empty
// value, which makes subsequent indented lines sub-properties rather than
// continuation text.
func (p *Property) IsEmptyValued() bool {
	return p.emptyValued
}

// SubProperty returns the value of the named sub-property.
func (p *Property) SubProperty(key string) (string, bool) {
	v, ok := p.subProperties[key]
	return v, ok
}

// SubPropertyCount returns the number of sub-properties.
func (p *Property) SubPropertyCount() int {
	return len(p.subProperties)
}

func (p *Property) addContinuation(text string) {
	p.value = p.value + "\n" + text
}

// setSubProperty records a sub-property, returning the previous value if one
// was overridden.
func (p *Property) setSubProperty(key, value string) (string, bool) {
	prev, overrode := p.subProperties[key]
	p.subProperties[key] = value
	return prev, overrode
}

// mergeFrom folds src onto p. The source value always wins, the emptiness
// flag is copied from src, and sub-properties are merged key-by-key with src
// overwriting p on conflict.
func (p *Property) mergeFrom(src *Property, profileName string, existed bool, logger *slog.Logger) {
	if existed {
		logger.Warn("property value replaced during merge",
			"profile", profileName,
			"property", p.name,
			"old", p.value,
			"new", src.value)
	}
	p.value = src.value
	p.emptyValued = src.emptyValued
	for k, v := range src.subProperties {
		if old, ok := p.subProperties[k]; ok {
			logger.Warn("sub-property overridden during merge",
				"profile", profileName,
				"property", p.name,
				"key", k,
				"old", old,
				"new", v)
		}
		p.subProperties[k] = v
	}
}

// Profile is a named, bracket-delimited section of a config or credentials
// file containing key-value properties.
type Profile struct {
	name             string
	hasProfilePrefix bool
	properties       map[string]*Property
}

func newProfile(name string, hasProfilePrefix bool) *Profile {
	return &Profile{
		name:             name,
		hasProfilePrefix: hasProfilePrefix,
		properties:       make(map[string]*Property),
	}
}

// Name returns the profile's name.
func (p *Profile) Name() string {
	return p.name
}

// HasProfilePrefix reports whether the profile was declared as
// "[profile name]" rather than "[name]".
func (p *Profile) HasProfilePrefix() bool {
	return p.hasProfilePrefix
}

// Property returns the named property.
func (p *Profile) Property(name string) (*Property, bool) {
	prop, ok := p.properties[name]
	return prop, ok
}

// PropertyValue returns the value of the named property, or the empty string
// if the profile has no such property.
func (p *Profile) PropertyValue(name string) string {
	prop, ok := p.properties[name]
	if !ok {
		return ""
	}
	return prop.value
}

// PropertyCount returns the number of properties.
func (p *Profile) PropertyCount() int {
	return len(p.properties)
}

// addProperty adds a property to the profile, replacing any existing
// property with the same name.
func (p *Profile) addProperty(name, value string) *Property {
	prop := newProperty(name, value)
	p.properties[name] = prop
	return prop
}

func (p *Profile) mergeFrom(src *Profile, logger *slog.Logger) {
	p.hasProfilePrefix = src.hasProfilePrefix
	for name, sprop := range src.properties {
		dprop, existed := p.properties[name]
		if !existed {
			dprop = newProperty(name, "")
			p.properties[name] = dprop
		}
		dprop.mergeFrom(sprop, p.name, existed, logger)
	}
}

// Collection is a set of uniquely named profiles parsed from a single config
// or credentials file, or produced by merging two such sets.
type Collection struct {
	source   Source
	profiles map[string]*Profile
}

func newCollection(source Source) *Collection {
	return &Collection{
		source:   source,
		profiles: make(map[string]*Profile),
	}
}

// Source returns the kind of file the collection was parsed from.
// [NewFromMerge] results report [SourceNone].
func (c *Collection) Source() Source {
	return c.source
}

// Profile returns the named profile.
func (c *Collection) Profile(name string) (*Profile, bool) {
	p, ok := c.profiles[name]
	return p, ok
}

// ProfileCount returns the number of profiles.
func (c *Collection) ProfileCount() int {
	return len(c.profiles)
}

// NewFromMerge combines a config-sourced collection and a
// credentials-sourced collection into a new collection. The config
// collection is folded in first and the credentials collection second, so a
// credentials-file property wins over a same-named config-file property on
// the same profile. A nil collection on either side is a no-op for that
// side; the inputs are never mutated. Value and sub-property overrides are
// reported to logger, which may be nil.
func NewFromMerge(config, credentials *Collection, logger *slog.Logger) *Collection {
	logger = internal.DefaultLogger(logger)
	merged := newCollection(SourceNone)
	merged.mergeFrom(config, logger)
	merged.mergeFrom(credentials, logger)
	return merged
}

func (c *Collection) mergeFrom(src *Collection, logger *slog.Logger) {
	if src == nil {
		return
	}
	for name, sp := range src.profiles {
		dp, ok := c.profiles[name]
		if !ok {
			dp = newProfile(name, sp.hasProfilePrefix)
			c.profiles[name] = dp
		}
		dp.mergeFrom(sp, logger)
	}
}
