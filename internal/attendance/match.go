package attendance

import (
	"bytes"
	"context"

	"workclock/internal/faceclient"
	"workclock/internal/model"
)

// PhotoMatcher decides whether a submitted photo matches the enrolled one.
type PhotoMatcher interface {
	Match(ctx context.Context, submitted, enrolled model.Photo) (bool, error)
}

// ExactMatcher accepts only byte-identical payloads. No normalization of
// encoding, whitespace or data-URL prefixes is applied.
type ExactMatcher struct{}

func (ExactMatcher) Match(_ context.Context, submitted, enrolled model.Photo) (bool, error) {
	return bytes.Equal(submitted, enrolled), nil
}

// FaceComparer is the part of the face service client used for matching.
type FaceComparer interface {
	Compare(ctx context.Context, photo1, photo2 string) (*faceclient.CompareResult, error)
}

// FaceServiceMatcher delegates the decision to the face comparison service.
type FaceServiceMatcher struct {
	client FaceComparer
}

// NewFaceServiceMatcher creates a matcher backed by the face service.
func NewFaceServiceMatcher(client FaceComparer) *FaceServiceMatcher {
	return &FaceServiceMatcher{client: client}
}

func (m *FaceServiceMatcher) Match(ctx context.Context, submitted, enrolled model.Photo) (bool, error) {
	res, err := m.client.Compare(ctx, submitted.String(), enrolled.String())
	if err != nil {
		return false, err
	}
	return res.Match, nil
}
