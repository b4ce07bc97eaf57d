package s3_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"impractical.co/dropper/host"
	"impractical.co/dropper/s3"
)

type object struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

// fakeClient is an in-memory bucket.
type fakeClient struct {
	mu      sync.Mutex
	bucket  string
	objects map[string]object
	failPut error
}

func newFakeClient(bucket string) *fakeClient {
	return &fakeClient{bucket: bucket, objects: map[string]object{}}
}

func (c *fakeClient) PutObject(_ context.Context, in *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if c.failPut != nil {
		return nil, c.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = object{
		data:        data,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
	}
	return &awss3.PutObjectOutput{}, nil
}

func (c *fakeClient) get(in string) (object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.objects[in]
	return o, ok
}

func (c *fakeClient) GetObject(_ context.Context, in *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	o, ok := c.get(aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key))
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &awss3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(o.data))}, nil
}

func (c *fakeClient) HeadObject(_ context.Context, in *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	o, ok := c.get(aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key))
	if !ok {
		return nil, &types.NotFound{}
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(o.data))),
		ContentType:   aws.String(o.contentType),
		Metadata:      o.metadata,
	}, nil
}

func (c *fakeClient) DeleteObject(_ context.Context, in *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func TestStorer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := newFakeClient("documents")
	storer := s3.NewStorer(client, "documents", "dropper/")

	doc, err := host.Upload(ctx, storer, bytes.NewReader([]byte("hello, world")), "guid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), doc.Size)

	stored, ok := client.get("documents/dropper/guid-1")
	require.True(t, ok, "expected object to be stored under the key prefix")
	assert.Equal(t, "text/plain; charset=utf-8", stored.contentType)

	stat, err := storer.Stat(ctx, "guid-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stat.Size)
	assert.Equal(t, "09ca7e4eaa6e8ae9c7d261167129184883644d07dfba7cbfbc4c8a2e08360d5b", stat.SHA256)
	assert.Equal(t, doc.SHA256, stat.SHA256)

	var buf bytes.Buffer
	require.NoError(t, host.Download(ctx, storer, &buf, "guid-1"))
	assert.Equal(t, "hello, world", buf.String())

	require.NoError(t, storer.Delete(ctx, "guid-1"))
	require.NoError(t, storer.Delete(ctx, "guid-1"))

	_, err = storer.Stat(ctx, "guid-1")
	assert.ErrorIs(t, err, host.ErrDocumentNotFound)
	err = host.Download(ctx, storer, &buf, "guid-1")
	assert.ErrorIs(t, err, host.ErrDocumentNotFound)
}

func TestStorerPutFailure(t *testing.T) {
	t.Parallel()
	client := newFakeClient("documents")
	client.failPut = errors.New("access denied")
	storer := s3.NewStorer(client, "documents", "")

	_, err := host.Upload(context.Background(), storer, bytes.NewReader([]byte("a")), "guid-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewClient(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	client, err := s3.NewClient(context.Background(), s3.Config{
		Bucket:   "documents",
		Region:   "eu-west-1",
		Endpoint: "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.Equal(t, "eu-west-1", client.Options().Region)
	assert.True(t, client.Options().UsePathStyle)
	assert.Equal(t, "http://localhost:4566", aws.ToString(client.Options().BaseEndpoint))
}
