package storage

import (
	"encoding/json"
	"fmt"

	"github.com/storyforge/storyforge/pkg/story"
)

// trailToStorage converts the assembled response into its persistence
// model. steps must already carry their final StepOrder.
func trailToStorage(requestID string, trail *story.Trail, steps []story.TrailStep) (*TrailModel, error) {
	metadata, err := toJSONBMap(trail.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode trail metadata: %w", err)
	}

	stepModels := make([]*TrailStepModel, len(steps))
	for i, step := range steps {
		content, err := toJSONBMap(step.ContentData)
		if err != nil {
			return nil, fmt.Errorf("encode step %d content: %w", step.StepOrder, err)
		}
		stepMetadata, err := toJSONBMap(step.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode step %d metadata: %w", step.StepOrder, err)
		}
		stepModels[i] = &TrailStepModel{
			StepOrder:   step.StepOrder,
			ContentData: content,
			Title:       step.Title,
			Description: step.Description,
			IsRequired:  step.IsRequired,
			Metadata:    stepMetadata,
		}
	}

	return &TrailModel{
		RequestID:   requestID,
		Title:       trail.Title,
		Description: trail.Description,
		Status:      string(trail.Status),
		IsPublic:    trail.IsPublic,
		Price:       trail.Price,
		Tags:        StringArray(trail.Tags),
		Metadata:    metadata,
		Steps:       stepModels,
	}, nil
}

// trailFromStorage reverses trailToStorage for reads.
func trailFromStorage(m *TrailModel) (*story.Trail, []story.TrailStep, error) {
	var metadata map[string]any
	if m.Metadata != nil {
		metadata = map[string]any(m.Metadata)
	}

	trail := &story.Trail{
		Title:       m.Title,
		Description: m.Description,
		Status:      story.TrailStatus(m.Status),
		IsPublic:    m.IsPublic,
		Price:       m.Price,
		Tags:        []string(m.Tags),
		Metadata:    metadata,
	}

	steps := make([]story.TrailStep, len(m.Steps))
	for i, sm := range m.Steps {
		var content story.NodeContent
		if err := fromJSONBMap(sm.ContentData, &content); err != nil {
			return nil, nil, fmt.Errorf("decode step %d content: %w", sm.StepOrder, err)
		}
		var stepMetadata map[string]any
		if sm.Metadata != nil {
			stepMetadata = map[string]any(sm.Metadata)
		}
		steps[i] = story.TrailStep{
			StepOrder:   sm.StepOrder,
			ContentData: content,
			Title:       sm.Title,
			Description: sm.Description,
			IsRequired:  sm.IsRequired,
			Metadata:    stepMetadata,
		}
	}

	return trail, steps, nil
}

func toJSONBMap(v any) (JSONBMap, error) {
	if v == nil {
		return make(JSONBMap), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m JSONBMap
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = make(JSONBMap)
	}
	return m, nil
}

func fromJSONBMap(m JSONBMap, out any) error {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
