package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/pkg/story"
)

// CharacterClient resolves a profile for a requested character name (C10).
// Never on the critical path: callers are expected to fall back to
// Synthesize on any error rather than fail the request.
type CharacterClient interface {
	Profile(ctx context.Context, characterName string) (*story.CharacterAssignment, error)
}

type characterProfileRequest struct {
	CharacterName string `json:"character_name"`
}

type characterProfileResponse struct {
	RoleInStory string `json:"role_in_story"`
}

type httpCharacterClient struct{ *HTTPClient }

// NewCharacterClient builds the HTTP-backed Character/Asset adapter client.
// Addressed over the same symmetric JSON envelope as the other specialist
// services (§6); it differs only in being optional and non-blocking.
func NewCharacterClient(cfg config.DependencyConfig) CharacterClient {
	return &httpCharacterClient{NewHTTPClient(cfg)}
}

func (c *httpCharacterClient) Profile(ctx context.Context, characterName string) (*story.CharacterAssignment, error) {
	var resp characterProfileResponse
	req := characterProfileRequest{CharacterName: characterName}
	if err := c.postJSON(ctx, "/v1/characters:profile", req, &resp); err != nil {
		return nil, err
	}
	return &story.CharacterAssignment{CharacterName: characterName, RoleInStory: resp.RoleInStory, Synthesized: false}, nil
}

// Synthesize derives a minimal-safe CharacterAssignment from the character
// name and theme alone, used whenever the Character service is unavailable
// or errors — the request must still complete (§4.10).
func Synthesize(characterName, theme string) *story.CharacterAssignment {
	role := "companion"
	themeLower := strings.ToLower(theme)
	switch {
	case strings.Contains(themeLower, "mystery") || strings.Contains(themeLower, "investigation"):
		role = "investigator"
	case strings.Contains(themeLower, "adventure") || strings.Contains(themeLower, "exploration"):
		role = "guide"
	case strings.Contains(themeLower, "training") || strings.Contains(themeLower, "education"):
		role = "mentor"
	}
	return &story.CharacterAssignment{
		CharacterName: characterName,
		RoleInStory:   fmt.Sprintf("%s (synthesized for %q)", role, theme),
		Synthesized:   true,
	}
}
