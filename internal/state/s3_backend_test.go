package state

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/picklr-io/deployr/internal/ir"
)

type fakeS3 struct {
	objects map[string][]byte
	lastPut *s3.PutObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Key)] = data
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

type fakeDynamo struct {
	items map[string]bool
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	key := in.Item["LockID"].(*dbtypes.AttributeValueMemberS).Value
	if f.items[key] {
		return nil, &dbtypes.ConditionalCheckFailedException{Message: aws.String("held")}
	}
	f.items[key] = true
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(f.items, in.Key["LockID"].(*dbtypes.AttributeValueMemberS).Value)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestS3BackendFromConfig(t *testing.T) {
	_, err := s3BackendFromConfig(map[string]string{}, "goerli")
	assert.ErrorContains(t, err, "bucket")

	b, err := s3BackendFromConfig(map[string]string{"bucket": "my-bucket"}, "goerli")
	require.NoError(t, err)
	assert.Equal(t, "deployr/goerli.json", b.key)
	assert.Equal(t, "us-east-1", b.region)
	assert.False(t, b.encrypt)

	b, err = s3BackendFromConfig(map[string]string{
		"bucket":         "custom-bucket",
		"key":            "custom/path.json",
		"region":         "eu-west-1",
		"dynamodb_table": "deployr-locks",
		"encrypt":        "true",
		"profile":        "staging",
	}, "goerli")
	require.NoError(t, err)
	assert.Equal(t, "custom/path.json", b.key)
	assert.Equal(t, "eu-west-1", b.region)
	assert.Equal(t, "deployr-locks", b.dynamoDBTable)
	assert.Equal(t, "staging", b.profile)
	assert.True(t, b.encrypt)
}

func TestS3Backend_ReadWrite(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	b, err := s3BackendFromConfig(map[string]string{"bucket": "b", "encrypt": "true"}, "goerli")
	require.NoError(t, err)
	b.s3Client = fake

	st, err := b.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, st.Deployments)

	st.Upsert(&ir.DeploymentRecord{Name: "ICO", Address: "0xabc", Status: ir.StatusConfirmed})
	require.NoError(t, b.Write(ctx, st))
	assert.Equal(t, s3types.ServerSideEncryptionAes256, fake.lastPut.ServerSideEncryption)

	got, err := b.Read(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.Find("ICO"))
	assert.Equal(t, "0xabc", got.Find("ICO").Address)
}

func TestS3Backend_Lock(t *testing.T) {
	ctx := context.Background()
	db := &fakeDynamo{items: map[string]bool{}}

	first, err := s3BackendFromConfig(map[string]string{"bucket": "b", "dynamodb_table": "locks"}, "goerli")
	require.NoError(t, err)
	first.dbClient = db
	second, err := s3BackendFromConfig(map[string]string{"bucket": "b", "dynamodb_table": "locks"}, "goerli")
	require.NoError(t, err)
	second.dbClient = db

	require.NoError(t, first.Lock(ctx))
	assert.ErrorIs(t, second.Lock(ctx), ErrLocked)
	require.NoError(t, first.Unlock(ctx))
	require.NoError(t, second.Lock(ctx))
}

func TestS3Backend_LockWithoutTable(t *testing.T) {
	b, err := s3BackendFromConfig(map[string]string{"bucket": "b"}, "goerli")
	require.NoError(t, err)
	assert.NoError(t, b.Lock(context.Background()))
	assert.NoError(t, b.Unlock(context.Background()))
}
