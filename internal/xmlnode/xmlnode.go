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

// Package xmlnode is a streaming, non-allocating tokenizer for the XML
// subset used by AWS Query API responses. It parses element tags and
// attributes into views borrowing from the document buffer and drives
// traversal through callbacks, never building a tree in memory.
//
// It is not a general-purpose XML parser: there is no namespace, DTD,
// CDATA, or entity handling, and no recovery from malformed input.
package xmlnode

import (
	"bytes"
	"errors"
)

// ErrMalformed is returned for any input the tokenizer cannot handle: a
// missing "<" or ">", a missing closing tag, or an oversized node name. A
// malformed fragment aborts the whole parse.
var ErrMalformed = errors.New("xmlnode: malformed document")

// maxClosingTagLen bounds the "</name>" tag the tokenizer scans for. Node
// names that do not fit are rejected; this is a parser limitation, not
// input validation.
const maxClosingTagLen = 260

// Attribute is one name="value" pair on an element tag. Both fields borrow
// from the document buffer.
type Attribute struct {
	Name  []byte
	Value []byte
}

// Node is one parsed element. Its fields borrow from the document buffer
// and are invalidated once the parser advances past the element's closing
// tag.
type Node struct {
	Name       []byte
	Attributes []Attribute

	bodyStart int
}

// NodeFunc is invoked once per element at the current nesting depth. The
// callback decides whether to descend by calling [Parser.NodeTraverse] or
// consume the element with [Parser.NodeBody]. Returning an error aborts the
// parse.
type NodeFunc func(p *Parser, n *Node) error

// Parser is a single-pass cursor over a caller-owned document buffer. The
// buffer must not be modified while the parser or any [Node] derived from
// it is in use.
type Parser struct {
	doc []byte
	pos int
}

// New returns a parser positioned at the start of doc.
func New(doc []byte) *Parser {
	return &Parser{doc: doc}
}

// Parse skips any leading declaration or processing-instruction nodes
// ("<?...?>", "<!...>") and invokes fn with the first element of the
// document. Multiple root-level elements are not supported; anything after
// the first root element is left unread.
func (p *Parser) Parse(fn NodeFunc) error {
	sawPreamble := false
	for {
		rel := bytes.IndexByte(p.doc[p.pos:], '<')
		if rel < 0 {
			if sawPreamble {
				// a document of only declarations has no root to deliver
				return nil
			}
			return ErrMalformed
		}
		open := p.pos + rel
		gt := bytes.IndexByte(p.doc[open:], '>')
		if gt < 0 {
			return ErrMalformed
		}
		if open+1 < len(p.doc) && (p.doc[open+1] == '?' || p.doc[open+1] == '!') {
			// nobody cares about the preamble
			sawPreamble = true
			p.pos = open + gt + 1
			continue
		}
		n, err := p.loadNode(open)
		if err != nil {
			return err
		}
		return fn(p, n)
	}
}

// NodeBody scans forward from the node's body for the literal matching
// closing tag and returns the bytes in between, advancing the cursor past
// the closing tag.
func (p *Parser) NodeBody(n *Node) ([]byte, error) {
	return p.advancePastClosing(n)
}

// NodeTraverse descends into n's children, invoking fn once per child. It
// stops at n's closing tag, consuming it. After each callback the cursor is
// moved past that child's closing tag, so a callback may consume the child
// with [Parser.NodeBody] or [Parser.NodeTraverse], or ignore it entirely.
// Nested callbacks give a depth-first walk of the document.
func (p *Parser) NodeTraverse(n *Node, fn NodeFunc) error {
	for {
		rel := bytes.IndexByte(p.doc[p.pos:], '<')
		if rel < 0 {
			return ErrMalformed
		}
		open := p.pos + rel
		if open+1 < len(p.doc) && p.doc[open+1] == '/' {
			// the parent's closing tag: no more children
			gt := bytes.IndexByte(p.doc[open:], '>')
			if gt < 0 {
				return ErrMalformed
			}
			p.pos = open + gt + 1
			return nil
		}
		child, err := p.loadNode(open)
		if err != nil {
			return err
		}
		if err := fn(p, child); err != nil {
			return err
		}
		if _, err := p.advancePastClosing(child); err != nil {
			return err
		}
	}
}

// loadNode parses the tag starting at the "<" at offset open and advances
// the cursor past its ">". The tag's declaration text is split on spaces:
// the first token is the name, the rest are attributes split on "=" with
// surrounding quotes trimmed from the value.
func (p *Parser) loadNode(open int) (*Node, error) {
	gt := bytes.IndexByte(p.doc[open:], '>')
	if gt < 0 {
		return nil, ErrMalformed
	}
	end := open + gt
	decl := p.doc[open+1 : end]
	p.pos = end + 1

	n := &Node{bodyStart: p.pos}
	for i, part := range bytes.Split(decl, []byte{' '}) {
		if i == 0 {
			n.Name = part
			continue
		}
		if len(part) == 0 {
			continue
		}
		name, value, _ := bytes.Cut(part, []byte{'='})
		n.Attributes = append(n.Attributes, Attribute{
			Name:  name,
			Value: bytes.Trim(value, `"`),
		})
	}
	return n, nil
}

func (p *Parser) advancePastClosing(n *Node) ([]byte, error) {
	if len(n.Name)+4 > maxClosingTagLen {
		return nil, ErrMalformed
	}
	if n.bodyStart+len(n.Name)+3 > len(p.doc) {
		return nil, ErrMalformed
	}

	closing := make([]byte, 0, len(n.Name)+3)
	closing = append(closing, '<', '/')
	closing = append(closing, n.Name...)
	closing = append(closing, '>')

	idx := bytes.Index(p.doc[n.bodyStart:], closing)
	if idx < 0 {
		return nil, ErrMalformed
	}
	body := p.doc[n.bodyStart : n.bodyStart+idx]
	// The cursor may already be past this point if a callback consumed the
	// node; never move it backwards.
	if end := n.bodyStart + idx + len(closing); end > p.pos {
		p.pos = end
	}
	return body, nil
}
