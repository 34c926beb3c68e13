package db

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	pkgerrors "github.com/pkg/errors"

	"github.com/Psychedelic/terabethia-relayer/awsclient"
	"github.com/Psychedelic/terabethia-relayer/config"
)

const (
	attrPrimaryKey = "PrimaryKey"
	attrValue      = "Value"
	attrUpdatedAt  = "UpdatedAt"
)

// DynamoDB stores every key as one item with a string hash key named PrimaryKey.
type DynamoDB struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

func NewDynamoDB(cfg config.DynamoDBConfig) (*DynamoDB, error) {
	sess, err := awsclient.NewSession(cfg.Region, cfg.Endpoint)
	if err != nil {
		return nil, err
	}

	return NewDynamoDBWithClient(dynamodb.New(sess), cfg.TableName), nil
}

func NewDynamoDBWithClient(client dynamodbiface.DynamoDBAPI, tableName string) *DynamoDB {
	return &DynamoDB{client: client, tableName: tableName}
}

func (d *DynamoDB) keyOf(key []byte) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		attrPrimaryKey: {S: aws.String(string(key))},
	}
}

func (d *DynamoDB) itemOf(key []byte, value []byte) map[string]*dynamodb.AttributeValue {
	item := d.keyOf(key)
	item[attrValue] = &dynamodb.AttributeValue{S: aws.String(string(value))}
	item[attrUpdatedAt] = &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(time.Now().UnixMilli(), 10))}
	return item
}

func (d *DynamoDB) Put(ctx context.Context, key []byte, value []byte) error {
	_, err := d.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.itemOf(key, value),
	})
	return pkgerrors.Wrapf(err, "dynamodb put %s", key)
}

func (d *DynamoDB) Delete(ctx context.Context, key []byte) error {
	_, err := d.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.tableName),
		Key:       d.keyOf(key),
	})
	return pkgerrors.Wrapf(err, "dynamodb delete %s", key)
}

func (d *DynamoDB) Has(ctx context.Context, key []byte) (bool, error) {
	_, err := d.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (d *DynamoDB) Get(ctx context.Context, key []byte) ([]byte, error) {
	out, err := d.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.tableName),
		Key:            d.keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "dynamodb get %s", key)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	attr, ok := out.Item[attrValue]
	if !ok || attr.S == nil {
		return []byte{}, nil
	}
	return []byte(*attr.S), nil
}

func (d *DynamoDB) CompareAndSwap(ctx context.Context, key []byte, old []byte, value []byte) (bool, error) {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      d.itemOf(key, value),
	}
	if old == nil {
		input.ConditionExpression = aws.String("attribute_not_exists(" + attrPrimaryKey + ")")
	} else {
		// Value is a reserved word
		input.ConditionExpression = aws.String("#v = :old")
		input.ExpressionAttributeNames = map[string]*string{"#v": aws.String(attrValue)}
		input.ExpressionAttributeValues = map[string]*dynamodb.AttributeValue{
			":old": {S: aws.String(string(old))},
		}
	}

	_, err := d.client.PutItemWithContext(ctx, input)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return false, nil
		}
		return false, pkgerrors.Wrapf(err, "dynamodb conditional put %s", key)
	}

	return true, nil
}

func (d *DynamoDB) Close() error {
	return nil
}
