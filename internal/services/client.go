// Package services holds the uniform ServiceClient abstraction over the
// four symmetric HTTP specialists (C3/C4/C5) plus the character adapter
// (C10), grounded on the teacher's pkg/executor.Executor/Manager pattern:
// one thin interface, one concrete transport per dependency, all wrapped
// in the same retry/backoff envelope.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/storyforge/storyforge/internal/config"
	"github.com/storyforge/storyforge/pkg/story"
)

// HTTPClient is the minimal transport every specialist client is built on:
// POST a JSON request body, decode a JSON response body, surface non-2xx
// statuses as errors classified by the caller.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	retry   *RetryPolicy
}

// NewHTTPClient builds an HTTPClient from a dependency configuration.
func NewHTTPClient(cfg config.DependencyConfig) *HTTPClient {
	retry := DefaultRetryPolicy()
	if cfg.MaxRetries > 0 {
		retry.MaxAttempts = cfg.MaxRetries
	}
	if cfg.RetryBaseDelay > 0 {
		retry.InitialDelay = cfg.RetryBaseDelay
	}
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		retry:   retry,
	}
}

// HTTPStatusError wraps a non-2xx response for upstream error classification.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream returned HTTP %d: %s", e.StatusCode, e.Body)
}

// postJSON executes a retried POST of reqBody to path, decoding the
// response into out. It does not wrap failures in a circuit breaker —
// that is the orchestrator's job, one layer up, so that breaker state is
// shared across every client invocation for a dependency.
func (c *HTTPClient) postJSON(ctx context.Context, path string, reqBody, out interface{}) error {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	return c.retry.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode >= 400 {
			return &HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if out == nil {
			return nil
		}
		return json.Unmarshal(body, out)
	})
}

// PromptClient composes a PromptPackage for a node (C3).
type PromptClient interface {
	Compose(ctx context.Context, req PromptRequest) (*story.PromptPackage, error)
}

// PromptRequest bundles the inputs to the Prompt Composer.
type PromptRequest struct {
	NodeContext story.NodeContext
	Request     *story.GenerationRequest
	// Guidance carries story-type-specific prompt engineering content
	// (see internal/prompt) so the Composer can steer tone and structure
	// without the orchestrator re-deriving it per call.
	Guidance string
}

type httpPromptClient struct{ *HTTPClient }

// NewPromptClient builds the HTTP-backed Prompt Composer client.
func NewPromptClient(cfg config.DependencyConfig) PromptClient {
	return &httpPromptClient{NewHTTPClient(cfg)}
}

func (c *httpPromptClient) Compose(ctx context.Context, req PromptRequest) (*story.PromptPackage, error) {
	var pkg story.PromptPackage
	if err := c.postJSON(ctx, "/v1/prompts:compose", req, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// ContentClient generates NodeContent from a PromptPackage (C4).
type ContentClient interface {
	Generate(ctx context.Context, pkg *story.PromptPackage) (*story.NodeContent, error)
}

type httpContentClient struct{ *HTTPClient }

// NewContentClient builds the HTTP-backed Content Generator client.
func NewContentClient(cfg config.DependencyConfig) ContentClient {
	return &httpContentClient{NewHTTPClient(cfg)}
}

func (c *httpContentClient) Generate(ctx context.Context, pkg *story.PromptPackage) (*story.NodeContent, error) {
	var content story.NodeContent
	if err := c.postJSON(ctx, "/v1/content:generate", pkg, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// QualityClient validates a NodeContent against age/safety/educational
// criteria (C5).
type QualityClient interface {
	Validate(ctx context.Context, content *story.NodeContent, audience story.Audience, language story.Language) (*story.QualityReport, error)
}

type qualityRequest struct {
	Content  *story.NodeContent `json:"content"`
	Audience story.Audience     `json:"audience"`
	Language story.Language     `json:"language"`
}

type httpQualityClient struct{ *HTTPClient }

// NewQualityClient builds the HTTP-backed Quality service client.
func NewQualityClient(cfg config.DependencyConfig) QualityClient {
	return &httpQualityClient{NewHTTPClient(cfg)}
}

func (c *httpQualityClient) Validate(ctx context.Context, content *story.NodeContent, audience story.Audience, language story.Language) (*story.QualityReport, error) {
	var report story.QualityReport
	req := qualityRequest{Content: content, Audience: audience, Language: language}
	if err := c.postJSON(ctx, "/v1/quality:validate", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

// ConstraintClient checks theme/vocabulary/required-element constraints
// (C5).
type ConstraintClient interface {
	Check(ctx context.Context, content *story.NodeContent, requiredElements []string, vocabularyLevel string, restrictedWords []string) (*story.ConstraintReport, error)
}

type constraintRequest struct {
	Content          *story.NodeContent `json:"content"`
	RequiredElements []string           `json:"required_elements,omitempty"`
	VocabularyLevel  string             `json:"vocabulary_level,omitempty"`
	RestrictedWords  []string           `json:"restricted_words,omitempty"`
}

type httpConstraintClient struct{ *HTTPClient }

// NewConstraintClient builds the HTTP-backed Constraint service client.
func NewConstraintClient(cfg config.DependencyConfig) ConstraintClient {
	return &httpConstraintClient{NewHTTPClient(cfg)}
}

func (c *httpConstraintClient) Check(ctx context.Context, content *story.NodeContent, requiredElements []string, vocabularyLevel string, restrictedWords []string) (*story.ConstraintReport, error) {
	var report story.ConstraintReport
	req := constraintRequest{Content: content, RequiredElements: requiredElements, VocabularyLevel: vocabularyLevel, RestrictedWords: restrictedWords}
	if err := c.postJSON(ctx, "/v1/constraints:check", req, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
