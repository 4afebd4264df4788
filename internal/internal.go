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

// Package internal provides shared helpers for the awsauth packages.
package internal

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const maxBodySize = 1 << 20

// DefaultClient returns a client suitable for credential fetches, with a
// short timeout so an unreachable metadata endpoint fails fast.
func DefaultClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// ReadAll consumes the whole reader, protecting against the server sending
// an unbounded response body.
func ReadAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	return b, nil
}

// DefaultLogger returns l, or a logger that discards all records when l is
// nil.
func DefaultLogger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
