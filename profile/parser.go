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
	"log/slog"
	"os"
	"strings"

	"github.com/credkit/awsauth/internal"
)

const (
	defaultProfileName = "default"
	profileKeyword     = "profile"
)

// ParseError is returned when a config or credentials file contains a
// construct the parser cannot recover from. The whole file is discarded; no
// collection is produced.
type ParseError struct {
	// Path is the source file path, if the input came from a file.
	Path string
	// Line is the 1-based line number the error was detected on.
	Line int
	// Profile is the name of the profile that was active, if any.
	Profile string
	// Property is the name of the property that was active, if any.
	Property string
	// Text is the raw text of the offending line.
	Text string

	msg string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("profile: %s (%s, line %d)", e.msg, e.Path, e.Line)
	}
	return fmt.Sprintf("profile: %s (line %d)", e.msg, e.Line)
}

// ParseOptions provides optional configuration for [Parse] and [ParseFile].
type ParseOptions struct {
	// Logger receives a record for every recoverable construct the parser
	// skips and every fatal condition it aborts on. Logging is purely
	// observational and never affects parsing. Optional.
	Logger *slog.Logger
}

func (o *ParseOptions) logger() *slog.Logger {
	if o == nil {
		return internal.DefaultLogger(nil)
	}
	return internal.DefaultLogger(o.Logger)
}

// Parse builds a [Collection] from the raw bytes of a config or credentials
// file. Lines with recoverable problems are skipped and reported to the
// options logger; a fatal problem aborts the parse and returns a
// [*ParseError] with no collection.
func Parse(b []byte, src Source, opts *ParseOptions) (*Collection, error) {
	return parse(b, src, "", opts)
}

// ParseFile reads path and parses it with [Parse]. The returned [*ParseError]
// carries the path for diagnostics.
func ParseFile(path string, src Source, opts *ParseOptions) (*Collection, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: unable to read %q: %w", path, err)
	}
	return parse(b, src, path, opts)
}

func parse(b []byte, src Source, path string, opts *ParseOptions) (*Collection, error) {
	p := &parser{
		collection: newCollection(src),
		path:       path,
		logger:     opts.logger(),
	}
	for i, raw := range strings.Split(string(b), "\n") {
		p.lineNumber = i + 1
		p.line = raw
		p.parseLine(raw)
		if p.fatal != nil {
			p.logger.Warn("fatal error while parsing profile collection", "path", path)
			return nil, p.fatal
		}
	}
	return p.collection, nil
}

// parser carries the mutable state threaded through the line classifiers:
// the collection being built, the profile and property that indented lines
// attach to, and diagnostics context.
type parser struct {
	collection      *Collection
	path            string
	logger          *slog.Logger
	currentProfile  *Profile
	currentProperty *Property
	line            string
	lineNumber      int
	seenProfile     bool
	fatal           *ParseError
}

// parseLine classifies one line. The classifiers are tried in a fixed order
// and the line is resolved by the first one that claims it; a line no
// classifier claims is a fatal error.
func (p *parser) parseLine(raw string) {
	// ignore the carriage return on Windows line endings
	line := strings.TrimRight(raw, "\r")
	if line == "" || isCommentLine(line) || trimLeftWS(line) == "" {
		return
	}

	if p.parseProfileDeclaration(line) {
		return
	}
	if p.parseContinuation(line) {
		return
	}
	if p.parseProperty(line) {
		return
	}

	p.fatalf("unidentifiable line type encountered while parsing profile file")
}

// parseProfileDeclaration attempts to parse a profile declaration:
//
//	"[" <ws>? <"profile" ws>? <identifier> <ws>? "]" <comment>?
//
// It returns false if the line is not a profile declaration, true otherwise,
// whether or not the declaration was valid.
func (p *parser) parseProfileDeclaration(line string) bool {
	// comments on declaration lines do not require prefixing whitespace
	l := trimRightWS(trimTrailingComment(line))
	if !strings.HasPrefix(l, "[") {
		return false
	}

	p.seenProfile = true
	p.currentProfile = nil
	p.currentProperty = nil

	l = trimLeftWS(l[1:])

	// The name only carries the prefix when "profile" is followed by at
	// least one whitespace character. A partial match like "[profilefoo]"
	// backtracks and uses the whole name.
	hasPrefix := false
	if rest, ok := strings.CutPrefix(l, profileKeyword); ok && rest != "" && isWhitespaceByte(rest[0]) {
		hasPrefix = true
		l = trimLeftWS(rest)
	}

	if hasPrefix && p.collection.source == SourceCredentials {
		p.recoverable("profile declarations in credentials files are not allowed to begin with the profile keyword")
		return true
	}

	name, rest := consumeWhile(l, isIdentifierByte)
	if name == "" {
		p.recoverable("profile declarations must contain a valid identifier for a name")
		return true
	}

	if p.collection.source == SourceConfig && !hasPrefix && name != defaultProfileName {
		p.recoverable("non-default profile declarations in config files must use the profile keyword")
		return true
	}

	// Distinguish a missing right bracket (fatal) from an invalid profile
	// name (recoverable) by consuming everything up to "]": nothing left
	// means the bracket is missing, a non-empty run before it means the
	// name contained invalid characters.
	invalid, rest := consumeWhile(trimLeftWS(rest), isNotProfileEnd)
	if rest == "" {
		p.fatalf("profile declaration missing required ending bracket")
		return true
	}
	if invalid != "" {
		p.recoverable("profile declaration contains invalid characters: %q", invalid)
		return true
	}

	p.currentProfile = p.addProfile(name, hasPrefix)
	return true
}

// parseContinuation attempts to parse a property continuation line: leading
// whitespace followed by text that either extends the current property's
// value or, for an empty-valued property, declares a sub-property. Comments
// cannot be made on continuation lines; they fold into the value.
func (p *parser) parseContinuation(line string) bool {
	l := trimRightWS(line)
	if l == "" || !isWhitespaceByte(l[0]) {
		return false
	}

	text := trimLeftWS(l)
	if text == "" {
		// whitespace-only lines are filtered before classification
		p.recoverable("property continuation internal parsing error")
		return true
	}

	if p.currentProfile == nil || p.currentProperty == nil {
		p.fatalf("property continuation seen outside of a current property")
		return true
	}

	if !p.currentProperty.emptyValued {
		p.currentProperty.addContinuation(text)
		return true
	}

	idx := strings.IndexByte(text, '=')
	if idx <= 0 {
		p.fatalf("empty-valued property continuation must contain the assignment operator")
		return true
	}
	key := trimRightWS(text[:idx])
	if !isIdentifierRun(key) {
		p.recoverable("empty-valued property continuation must have a valid identifier to the left of the assignment")
		return true
	}
	value := trimLeftWS(text[idx+1:])
	if prev, overrode := p.currentProperty.setSubProperty(key, value); overrode {
		p.warn("sub-property value overridden",
			slog.String("property", p.currentProperty.name),
			slog.String("key", key),
			slog.String("old", prev),
			slog.String("new", value))
	}
	return true
}

// parseProperty attempts to parse a property definition:
//
//	<identifier> <ws>? "=" <ws>? <value> <ws-prefixed comment>?
//
// A bare comment token inside the value is kept; only a comment preceded by
// whitespace is stripped.
func (p *parser) parseProperty(line string) bool {
	l := trimRightWS(trimTrailingWhitespaceComment(line))

	p.currentProperty = nil

	idx := strings.IndexByte(l, '=')
	if idx == 0 {
		p.fatalf("property definition does not contain the assignment operator")
		return true
	}
	key := l
	if idx > 0 {
		key = l[:idx]
	}
	key = trimRightWS(key)
	if !isIdentifierRun(key) {
		p.recoverable("property definition does not begin with a valid identifier")
		return true
	}
	if idx < 0 {
		p.fatalf("property definition does not contain the assignment operator")
		return true
	}
	value := trimLeftWS(l[idx+1:])

	if p.currentProfile != nil {
		p.currentProperty = p.currentProfile.addProperty(key, value)
		return true
	}
	if p.seenProfile {
		p.recoverable("property definition seen outside a profile")
	} else {
		p.fatalf("property definition seen before any profiles")
	}
	return true
}

// addProfile registers or fetches the named profile. In a config-sourced
// collection only one profile may claim the name "default": a prefixed
// declaration always supersedes an unprefixed one, in either order. When the
// existing prefixed profile wins, nil is returned so that the superseded
// declaration's properties are discarded.
func (p *parser) addProfile(name string, hasPrefix bool) *Profile {
	c := p.collection
	existing := c.profiles[name]

	if c.source == SourceConfig && name == defaultProfileName {
		if !hasPrefix && existing != nil && existing.hasProfilePrefix {
			p.warn("existing prefixed default config profile supersedes unprefixed default profile")
			return nil
		}
		if hasPrefix && existing != nil && !existing.hasProfilePrefix {
			p.warn("prefixed default config profile replacing unprefixed default profile")
			delete(c.profiles, name)
			existing = nil
		}
	}

	if existing != nil {
		return existing
	}
	np := newProfile(name, hasPrefix)
	c.profiles[name] = np
	return np
}

func (p *parser) recoverable(format string, args ...any) {
	p.warn(fmt.Sprintf(format, args...))
}

func (p *parser) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	p.warn(msg)
	p.fatal = &ParseError{
		Path:     p.path,
		Line:     p.lineNumber,
		Profile:  p.currentProfileName(),
		Property: p.currentPropertyName(),
		Text:     p.line,
		msg:      msg,
	}
}

func (p *parser) warn(msg string, attrs ...any) {
	attrs = append(attrs,
		slog.String("file", p.path),
		slog.Int("line", p.lineNumber),
		slog.String("currentProfile", p.currentProfileName()),
		slog.String("currentProperty", p.currentPropertyName()),
		slog.String("text", p.line))
	p.logger.Warn(msg, attrs...)
}

func (p *parser) currentProfileName() string {
	if p.currentProfile == nil {
		return ""
	}
	return p.currentProfile.name
}

func (p *parser) currentPropertyName() string {
	if p.currentProperty == nil {
		return ""
	}
	return p.currentProperty.name
}

/*
 * Character classes and scan helpers.
 */

func isIdentifierByte(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') || b == '\\' || b == '_' || b == '-'
}

func isWhitespaceByte(b byte) bool {
	switch b {
	case '\t', '\n', '\r', ' ':
		return true
	default:
		return false
	}
}

func isCommentByte(b byte) bool {
	return b == '#' || b == ';'
}

func isNotProfileEnd(b byte) bool {
	return b != ']'
}

func isCommentLine(line string) bool {
	return isCommentByte(line[0])
}

func trimLeftWS(s string) string {
	for len(s) > 0 && isWhitespaceByte(s[0]) {
		s = s[1:]
	}
	return s
}

func trimRightWS(s string) string {
	for len(s) > 0 && isWhitespaceByte(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

// consumeWhile splits s at the first byte that fails pred.
func consumeWhile(s string, pred func(byte) bool) (consumed, rest string) {
	i := 0
	for i < len(s) && pred(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// isIdentifierRun reports whether every byte of s is an identifier
// character.
func isIdentifierRun(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isIdentifierByte(s[i]) {
			return false
		}
	}
	return true
}

// trimTrailingComment cuts line at the first comment token, whether or not
// it is preceded by whitespace.
func trimTrailingComment(line string) string {
	if idx := strings.IndexAny(line, "#;"); idx >= 0 {
		return line[:idx]
	}
	return line
}

// trimTrailingWhitespaceComment cuts line at a comment token preceded by at
// least one whitespace character. A bare "#" or ";" embedded in a value is
// not a comment.
func trimTrailingWhitespaceComment(line string) string {
	for i := 0; i+1 < len(line); i++ {
		if isWhitespaceByte(line[i]) && isCommentByte(line[i+1]) {
			return line[:i]
		}
	}
	return line
}
