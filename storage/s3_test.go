package storage

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockS3 struct {
	objects map[string]mockObject

	lastPutKey  string
	lastPutMIME string
}

type mockObject struct {
	data []byte
	mime string
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string]mockObject)}
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	mime := ""
	if in.ContentType != nil {
		mime = *in.ContentType
	}
	m.objects[*in.Key] = mockObject{data: data, mime: mime}
	m.lastPutKey = *in.Key
	m.lastPutMIME = mime
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "not found"}
	}
	return &s3.GetObjectOutput{
		Body:        io.NopCloser(strings.NewReader(string(obj.data))),
		ContentType: aws.String(obj.mime),
	}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, ok := m.objects[*in.Key]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "not found"}
	}
	size := int64(len(obj.data))
	return &s3.HeadObjectOutput{
		ContentLength: &size,
		ContentType:   aws.String(obj.mime),
	}, nil
}

type mockPresigner struct{}

func (mockPresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{
		URL:    "https://example.test/" + *in.Key + "?signature=abc",
		Method: "GET",
	}, nil
}

func TestS3StorePutGet(t *testing.T) {
	client := newMockS3()
	store := NewS3Store(client, mockPresigner{}, "bucket", "audio")

	err := store.Put(context.Background(), "rec-1", []byte("payload"), "audio/webm")
	require.NoError(t, err)
	assert.Equal(t, "audio/rec-1", client.lastPutKey)
	assert.Equal(t, "audio/webm", client.lastPutMIME)

	data, err := store.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
}

func TestS3StoreGetMissing(t *testing.T) {
	store := NewS3Store(newMockS3(), mockPresigner{}, "bucket", "")

	_, err := store.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreHead(t *testing.T) {
	client := newMockS3()
	store := NewS3Store(client, mockPresigner{}, "bucket", "")
	require.NoError(t, store.Put(context.Background(), "cache/abc", []byte("mp3bytes"), "audio/mpeg"))

	info, err := store.Head(context.Background(), "cache/abc")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(8), info.Size)
	assert.Equal(t, "audio/mpeg", info.MIME)

	info, err = store.Head(context.Background(), "cache/missing")
	require.NoError(t, err)
	assert.False(t, info.Exists)
}

func TestS3StoreSign(t *testing.T) {
	store := NewS3Store(newMockS3(), mockPresigner{}, "bucket", "audio")

	url, err := store.Sign(context.Background(), "rec-2", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/audio/rec-2?signature=abc", url)
}

func TestContentKeyDeterministic(t *testing.T) {
	a := ContentKey("hello", "English", "Kore", "v1")
	b := ContentKey("hello", "English", "Kore", "v1")
	c := ContentKey("hello", "English", "Puck", "v1")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}
