package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/pkg/story"
)

func testDependencyConfig(url string) config.DependencyConfig {
	return config.DependencyConfig{BaseURL: url, Timeout: time.Second, MaxRetries: 1}
}

func TestPromptClient_Compose_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/prompts:compose", r.URL.Path)
		_ = json.NewEncoder(w).Encode(story.PromptPackage{SystemPrompt: "sys", UserPrompt: "usr", ModelName: "m1"})
	}))
	defer srv.Close()

	client := NewPromptClient(testDependencyConfig(srv.URL))
	pkg, err := client.Compose(context.Background(), PromptRequest{})
	require.NoError(t, err)
	assert.Equal(t, "sys", pkg.SystemPrompt)
	assert.Equal(t, "m1", pkg.ModelName)
}

func TestContentClient_Generate_ReturnsHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	client := NewContentClient(testDependencyConfig(srv.URL))
	_, err := client.Generate(context.Background(), &story.PromptPackage{})
	require.Error(t, err)

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
}

func TestQualityClient_Validate_SendsAudienceAndLanguage(t *testing.T) {
	var received qualityRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(story.QualityReport{AgeAppropriateScore: 0.9})
	}))
	defer srv.Close()

	client := NewQualityClient(testDependencyConfig(srv.URL))
	report, err := client.Validate(context.Background(), &story.NodeContent{ID: "n1"}, story.Audience9to11, story.LanguageEnglish)
	require.NoError(t, err)
	assert.Equal(t, story.Audience9to11, received.Audience)
	assert.Equal(t, 0.9, report.AgeAppropriateScore)
}

func TestConstraintClient_Check_DecodesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(story.ConstraintReport{ThemeConsistencyScore: 0.8, MissingElements: []string{"dragon"}})
	}))
	defer srv.Close()

	client := NewConstraintClient(testDependencyConfig(srv.URL))
	report, err := client.Check(context.Background(), &story.NodeContent{}, []string{"dragon"}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"dragon"}, report.MissingElements)
}

func TestCharacterClient_Profile_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(characterProfileResponse{RoleInStory: "mentor"})
	}))
	defer srv.Close()

	client := NewCharacterClient(testDependencyConfig(srv.URL))
	assignment, err := client.Profile(context.Background(), "Ava")
	require.NoError(t, err)
	assert.Equal(t, "mentor", assignment.RoleInStory)
	assert.False(t, assignment.Synthesized)
}

func TestSynthesize_DerivesRoleFromTheme(t *testing.T) {
	a := Synthesize("Ava", "an underwater mystery investigation")
	assert.True(t, a.Synthesized)
	assert.Contains(t, a.RoleInStory, "investigator")
}

func TestSynthesize_DefaultsToCompanion(t *testing.T) {
	a := Synthesize("Ava", "a quiet afternoon")
	assert.Contains(t, a.RoleInStory, "companion")
}
