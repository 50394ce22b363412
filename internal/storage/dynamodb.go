package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DynamoDBAPI interface for mocking
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoDBStore implements Store on DynamoDB. Transactions commit as a single
// TransactWriteItems call with per-item version condition checks, so a lost
// read-modify-write race cancels the whole group and surfaces as ErrConflict.
type DynamoDBStore struct {
	client     DynamoDBAPI
	jobsTable  string
	unitsTable string
	logTable   string
}

func NewDynamoDBStore(client DynamoDBAPI, jobsTable, unitsTable, logTable string) *DynamoDBStore {
	return &DynamoDBStore{
		client:     client,
		jobsTable:  jobsTable,
		unitsTable: unitsTable,
		logTable:   logTable,
	}
}

func (d *DynamoDBStore) GetJob(ctx context.Context, jobID string) (*Job, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.jobsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}

	var job Job
	if err := attributevalue.UnmarshalMap(result.Item, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

func (d *DynamoDBStore) GetAllJobs(ctx context.Context) ([]*Job, error) {
	result, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.jobsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan jobs: %w", err)
	}

	return unmarshalJobs(result.Items)
}

func (d *DynamoDBStore) GetJobsByStatus(ctx context.Context, status string) ([]*Job, error) {
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.jobsTable),
		IndexName:              aws.String("status-index"),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: status},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs by status: %w", err)
	}

	return unmarshalJobs(result.Items)
}

func (d *DynamoDBStore) GetActiveJobs(ctx context.Context) ([]*Job, error) {
	var jobs []*Job
	for _, status := range NonTerminalStatuses {
		batch, err := d.GetJobsByStatus(ctx, status)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, batch...)
	}

	return jobs, nil
}

func (d *DynamoDBStore) GetUnit(ctx context.Context, unitID string) (*Unit, error) {
	result, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.unitsTable),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: unitID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	if result.Item == nil {
		return nil, fmt.Errorf("unit %s: %w", unitID, ErrNotFound)
	}

	var unit Unit
	if err := attributevalue.UnmarshalMap(result.Item, &unit); err != nil {
		return nil, fmt.Errorf("failed to unmarshal unit: %w", err)
	}

	return &unit, nil
}

func (d *DynamoDBStore) GetAllUnits(ctx context.Context) ([]*Unit, error) {
	result, err := d.client.Scan(ctx, &dynamodb.ScanInput{
		TableName: aws.String(d.unitsTable),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan units: %w", err)
	}

	var units []*Unit
	for _, item := range result.Items {
		var unit Unit
		if err := attributevalue.UnmarshalMap(item, &unit); err != nil {
			return nil, fmt.Errorf("failed to unmarshal unit: %w", err)
		}
		units = append(units, &unit)
	}

	return units, nil
}

func (d *DynamoDBStore) CreateUnit(ctx context.Context, unit *Unit) error {
	if unit.ID == "" {
		unit.ID = uuid.NewString()
	}
	unit.Version = 1

	item, err := attributevalue.MarshalMap(unit)
	if err != nil {
		return fmt.Errorf("failed to marshal unit: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.unitsTable),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return fmt.Errorf("failed to put unit: %w", err)
	}

	return nil
}

func (d *DynamoDBStore) GetActivityLog(ctx context.Context, jobID string) ([]*ActivityLogEntry, error) {
	result, err := d.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.logTable),
		IndexName:              aws.String("job-index"),
		KeyConditionExpression: aws.String("job_id = :jobID"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":jobID": &types.AttributeValueMemberS{Value: jobID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query activity log: %w", err)
	}

	var entries []*ActivityLogEntry
	for _, item := range result.Items {
		var entry ActivityLogEntry
		if err := attributevalue.UnmarshalMap(item, &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal log entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

func (d *DynamoDBStore) Txn(ctx context.Context, unitID string, fn func(Tx) error) error {
	tx := &dynamoTx{store: d, ctx: ctx}
	if err := fn(tx); err != nil {
		return err
	}
	if tx.err != nil {
		return tx.err
	}

	if len(tx.writes) == 0 {
		return nil
	}

	_, err := d.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: tx.writes,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return fmt.Errorf("transact write canceled: %w", ErrConflict)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// dynamoTx stages condition-checked writes for a single TransactWriteItems
// call. The version captured at read time guards every staged update.
type dynamoTx struct {
	store  *DynamoDBStore
	ctx    context.Context
	writes []types.TransactWriteItem
	err    error
}

func (tx *dynamoTx) GetJob(id string) (*Job, error) {
	return tx.store.GetJob(tx.ctx, id)
}

func (tx *dynamoTx) GetUnit(id string) (*Unit, error) {
	return tx.store.GetUnit(tx.ctx, id)
}

func (tx *dynamoTx) PendingJobsForUnit(unitID string) ([]*Job, error) {
	result, err := tx.store.client.Query(tx.ctx, &dynamodb.QueryInput{
		TableName:              aws.String(tx.store.jobsTable),
		IndexName:              aws.String("unit-index"),
		KeyConditionExpression: aws.String("assigned_unit_id = :unitID"),
		FilterExpression:       aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":unitID":  &types.AttributeValueMemberS{Value: unitID},
			":pending": &types.AttributeValueMemberS{Value: StatusPending},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}

	jobs, err := unmarshalJobs(result.Items)
	if err != nil {
		return nil, err
	}

	SortJobsByRequestedAt(jobs)
	return jobs, nil
}

func (tx *dynamoTx) CreateJob(job *Job) {
	job.ID = uuid.NewString()
	job.Version = 1
	tx.stagePut(tx.store.jobsTable, job, aws.String("attribute_not_exists(id)"), nil)
}

func (tx *dynamoTx) PutJob(job *Job) {
	expected := job.Version
	job.Version++
	tx.stagePut(tx.store.jobsTable, job, aws.String("version = :v"), map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
	})
}

func (tx *dynamoTx) PutUnit(unit *Unit) {
	expected := unit.Version
	unit.Version++
	tx.stagePut(tx.store.unitsTable, unit, aws.String("version = :v"), map[string]types.AttributeValue{
		":v": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expected)},
	})
}

func (tx *dynamoTx) AppendLog(entry *ActivityLogEntry) {
	entry.ID = uuid.NewString()
	tx.stagePut(tx.store.logTable, entry, nil, nil)
}

func (tx *dynamoTx) stagePut(table string, record interface{}, condition *string, values map[string]types.AttributeValue) {
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		if tx.err == nil {
			tx.err = fmt.Errorf("failed to marshal record for %s: %w", table, err)
		}
		return
	}

	tx.writes = append(tx.writes, types.TransactWriteItem{
		Put: &types.Put{
			TableName:                 aws.String(table),
			Item:                      item,
			ConditionExpression:       condition,
			ExpressionAttributeValues: values,
		},
	})
}

func unmarshalJobs(items []map[string]types.AttributeValue) ([]*Job, error) {
	var jobs []*Job
	for _, item := range items {
		var job Job
		if err := attributevalue.UnmarshalMap(item, &job); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	return jobs, nil
}
