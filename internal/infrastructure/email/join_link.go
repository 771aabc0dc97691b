// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package email

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/akamensky/base58"
)

// DefaultJoinLinkBaseURL hosts generated video rooms.
const DefaultJoinLinkBaseURL = "https://meet.jit.si"

// joinCodeBytes is the entropy of a generated meeting code.
const joinCodeBytes = 10

// JoinLinkGenerator mints video meeting links of the form <base>/<code>.
type JoinLinkGenerator struct {
	baseURL string
	random  io.Reader
}

// NewJoinLinkGenerator creates a generator for rooms under baseURL. An empty
// baseURL selects DefaultJoinLinkBaseURL.
func NewJoinLinkGenerator(baseURL string) (*JoinLinkGenerator, error) {
	if baseURL == "" {
		baseURL = DefaultJoinLinkBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid join link base url %q", baseURL)
	}
	return &JoinLinkGenerator{baseURL: strings.TrimRight(baseURL, "/"), random: rand.Reader}, nil
}

// Generate returns a new, unguessable join link.
func (g *JoinLinkGenerator) Generate() (string, error) {
	buf := make([]byte, joinCodeBytes)
	if _, err := io.ReadFull(g.random, buf); err != nil {
		return "", fmt.Errorf("failed to generate meeting code: %w", err)
	}
	return g.baseURL + "/" + base58.Encode(buf), nil
}

// MeetingCode extracts the room code from a join link.
func MeetingCode(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil || u.Path == "" || u.Path == "/" {
		return ""
	}
	return path.Base(u.Path)
}
