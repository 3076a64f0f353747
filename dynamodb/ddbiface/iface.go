// Package ddbiface provides the DynamoDB client interface the key collaborators
// read and write through. It is satisfied by both the AWS SDK v2 DynamoDB
// client and by ddbstore.Store, so the same code works against real AWS
// DynamoDB or local BadgerDB-backed storage.
package ddbiface

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// AWSDynamoClientV2 mirrors the subset of *dynamodb.Client method signatures
// needed to load entities, aggregate collections and touch parents.
type AWSDynamoClientV2 interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ AWSDynamoClientV2 = (*dynamodb.Client)(nil)
