package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/model"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	if in.Body != nil {
		f.body, _ = io.ReadAll(in.Body)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	client := &fakeS3{}
	s := newS3Store(client, "hubizz-media", "us-east-1", "prod")

	loc, err := s.Put(context.Background(), "uploads/posts/2026/03/a.png", bytes.NewReader([]byte("png")), "image/png")
	require.NoError(t, err)

	assert.Equal(t, "https://hubizz-media.s3.us-east-1.amazonaws.com/prod/uploads/posts/2026/03/a.png", loc)
	assert.Equal(t, "hubizz-media", aws.ToString(client.input.Bucket))
	assert.Equal(t, "prod/uploads/posts/2026/03/a.png", aws.ToString(client.input.Key))
	assert.Equal(t, "image/png", aws.ToString(client.input.ContentType))
	assert.Equal(t, "png", string(client.body))
}

func TestS3Store_Put_NoRegionNoContentType(t *testing.T) {
	client := &fakeS3{}
	s := newS3Store(client, "b", "", "")

	loc, err := s.Put(context.Background(), "/k.jpg", bytes.NewReader(nil), "")
	require.NoError(t, err)
	assert.Equal(t, "https://b.s3.amazonaws.com/k.jpg", loc)
	assert.Nil(t, client.input.ContentType)
}

func TestS3Store_Put_Error(t *testing.T) {
	s := newS3Store(&fakeS3{err: errors.New("access denied")}, "b", "eu-west-1", "")

	_, err := s.Put(context.Background(), "k.jpg", bytes.NewReader(nil), "image/jpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	assert.Contains(t, err.Error(), "s3://b/k.jpg")
}

func TestNewS3Store_EmptyBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}
