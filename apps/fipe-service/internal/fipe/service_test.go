package fipe

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFetcher struct {
	paths []string
	body  json.RawMessage
	err   error
}

func (f *recordingFetcher) Fetch(_ context.Context, path string) (json.RawMessage, error) {
	f.paths = append(f.paths, path)
	return f.body, f.err
}

func TestService_Paths(t *testing.T) {
	f := &recordingFetcher{body: json.RawMessage(`[]`)}
	svc := NewService(f)
	ctx := context.Background()

	_, err := svc.Brands(ctx, "moto")
	require.NoError(t, err)
	_, err = svc.Models(ctx, "caminhao", "102")
	require.NoError(t, err)
	_, err = svc.Years(ctx, "unknown", "59", "5940")
	require.NoError(t, err)
	_, err = svc.Price(ctx, "carro", "59", "5940", "2014-3")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/motorcycles/brands",
		"/trucks/brands/102/models",
		"/cars/brands/59/models/5940/years",
		"/cars/brands/59/models/5940/years/2014-3",
	}, f.paths)
}

func TestYearsPath_EscapesSegments(t *testing.T) {
	assert.Equal(t, "/cars/brands/a%2Fb/models/x%20y/years", YearsPath("carro", "a/b", "x y"))
}
