package db

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/stretchr/testify/require"
)

type fakeDynamoDB struct {
	dynamodbiface.DynamoDBAPI

	mu    sync.Mutex
	items map[string]map[string]*dynamodb.AttributeValue
}

func newFakeDynamoDB() *fakeDynamoDB {
	return &fakeDynamoDB{items: map[string]map[string]*dynamodb.AttributeValue{}}
}

func (f *fakeDynamoDB) PutItemWithContext(_ aws.Context, in *dynamodb.PutItemInput, _ ...request.Option) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := *in.Item[attrPrimaryKey].S
	current, exists := f.items[key]
	if in.ConditionExpression != nil {
		var ok bool
		switch *in.ConditionExpression {
		case "attribute_not_exists(PrimaryKey)":
			ok = !exists
		case "#v = :old":
			ok = exists && *current[attrValue].S == *in.ExpressionAttributeValues[":old"].S
		}
		if !ok {
			return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "the conditional request failed", nil)
		}
	}

	f.items[key] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamoDB) GetItemWithContext(_ aws.Context, in *dynamodb.GetItemInput, _ ...request.Option) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &dynamodb.GetItemOutput{Item: f.items[*in.Key[attrPrimaryKey].S]}, nil
}

func (f *fakeDynamoDB) DeleteItemWithContext(_ aws.Context, in *dynamodb.DeleteItemInput, _ ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.items, *in.Key[attrPrimaryKey].S)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoDB_KeyLayout(t *testing.T) {
	ctx := context.Background()
	fake := newFakeDynamoDB()
	store, err := NewStore(NewDynamoDBWithClient(fake, "relayer"), 16)
	require.NoError(t, err)

	require.NoError(t, store.Claim(ctx, "abc"))
	require.NoError(t, store.RecordTransaction(ctx, "0x01", []string{"abc"}))
	require.NoError(t, store.CompareAndSetLastNonce(ctx, nil, 5))

	require.Contains(t, fake.items, "msg_abc")
	require.Contains(t, fake.items, "0x01")
	require.Equal(t, "0x01", *fake.items["msgKey_abc"][attrValue].S)
	require.Equal(t, "5", *fake.items["lastNonce"][attrValue].S)
}

func TestDynamoDB_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	d := NewDynamoDBWithClient(newFakeDynamoDB(), "relayer")

	ok, err := d.CompareAndSwap(ctx, []byte("lastNonce"), nil, []byte("1"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.CompareAndSwap(ctx, []byte("lastNonce"), nil, []byte("1"))
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = d.CompareAndSwap(ctx, []byte("lastNonce"), []byte("1"), []byte("2"))
	require.NoError(t, err)
	require.True(t, ok)

	val, err := d.Get(ctx, []byte("lastNonce"))
	require.NoError(t, err)
	require.Equal(t, "2", string(val))

	require.NoError(t, d.Delete(ctx, []byte("lastNonce")))
	has, err := d.Has(ctx, []byte("lastNonce"))
	require.NoError(t, err)
	require.False(t, has)
}
