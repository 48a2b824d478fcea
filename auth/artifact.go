package auth

import (
	"net/url"
	"regexp"
	"strings"
)

var linkIDPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// Artifact is a parsed authorization artifact. Exactly one field is set.
type Artifact struct {
	// LinkID is the pending-authorization identifier exchanged for tokens.
	LinkID string

	// AccessToken is a ready-made bearer token adopted as-is.
	AccessToken string
}

// ParseArtifact classifies a raw authorization artifact: a full OAuth URL
// carrying an id parameter, a bare link ID, or a raw JWT access token.
func ParseArtifact(raw string) (Artifact, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Artifact{}, ErrInvalidArtifact
	}

	// Three dot-separated segments is a compact JWT.
	if strings.Count(raw, ".") == 2 && !strings.Contains(raw, "/") {
		return Artifact{AccessToken: raw}, nil
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return Artifact{}, ErrInvalidArtifact
		}
		if id := u.Query().Get("id"); id != "" && linkIDPattern.MatchString(id) {
			return Artifact{LinkID: id}, nil
		}
		// Deep links sometimes carry the id as the last path segment.
		if segments := strings.Split(strings.Trim(u.Path, "/"), "/"); len(segments) > 0 {
			last := segments[len(segments)-1]
			if last != "" && linkIDPattern.MatchString(last) {
				return Artifact{LinkID: last}, nil
			}
		}
		return Artifact{}, ErrInvalidArtifact
	}

	if linkIDPattern.MatchString(raw) {
		return Artifact{LinkID: raw}, nil
	}
	return Artifact{}, ErrInvalidArtifact
}
