// Package dynamodb stores projects as single items in a DynamoDB table.
package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

const (
	projectPrefix = "PROJECT#"
	metadataSK    = "METADATA"
	entityType    = "PROJECT"
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// projectItem is the stored shape. GraphData is kept as a JSON string so the
// item mirrors the graph_data column of the Postgres schema.
type projectItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	EntityType string `dynamodbav:"EntityType"`
	UserID     string `dynamodbav:"UserID"`
	Title      string `dynamodbav:"Title"`
	GraphData  string `dynamodbav:"GraphData"`
	UpdatedAt  string `dynamodbav:"UpdatedAt"`
	Version    int64  `dynamodbav:"Version"`
}

// ProjectStore keeps one item per project:
//
//	PK=PROJECT#<id> SK=METADATA UserID Title GraphData(JSON) UpdatedAt Version
type ProjectStore struct {
	client    API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewClient loads the default AWS config for region. A non-empty endpoint
// points the client at DynamoDB Local.
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// NewProjectStore creates a store over tableName.
func NewProjectStore(client API, tableName string, logger *zap.Logger) *ProjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProjectStore{client: client, tableName: tableName, logger: logger, now: time.Now}
}

func projectKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: projectPrefix + id},
		"SK": &types.AttributeValueMemberS{Value: metadataSK},
	}
}

// GetProject reads the project item.
func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            projectKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, s.mapError(ctx, "get project", id, err)
	}
	if len(out.Item) == 0 {
		return nil, pkgerrors.NewNotFoundError("project")
	}
	return decodeProject(out.Item)
}

// CreateProject writes a new item. It is used to seed a table; the editor
// itself never creates projects.
func (s *ProjectStore) CreateProject(ctx context.Context, p *project.Project) error {
	graphJSON, err := json.Marshal(p.GraphData.Clone())
	if err != nil {
		return pkgerrors.NewValidationError("graph data is not serializable").WithCause(err)
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}

	item, err := attributevalue.MarshalMap(projectItem{
		PK:         projectPrefix + p.ID,
		SK:         metadataSK,
		EntityType: entityType,
		UserID:     p.UserID,
		Title:      p.Title,
		GraphData:  string(graphJSON),
		UpdatedAt:  updatedAt.UTC().Format(time.RFC3339Nano),
		Version:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}

	expr, err := expression.NewBuilder().
		WithCondition(expression.Name("PK").AttributeNotExists()).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return pkgerrors.NewConflictError("project already exists").WithCause(err)
		}
		return s.mapError(ctx, "create project", p.ID, err)
	}
	return nil
}

// UpdateProject replaces the graph (and title when set) of an existing item.
func (s *ProjectStore) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	graphJSON, err := json.Marshal(update.GraphData.Clone())
	if err != nil {
		return nil, pkgerrors.NewValidationError("graph data is not serializable").WithCause(err)
	}

	updateExpr := expression.
		Set(expression.Name("GraphData"), expression.Value(string(graphJSON))).
		Set(expression.Name("UpdatedAt"), expression.Value(s.now().UTC().Format(time.RFC3339Nano))).
		Add(expression.Name("Version"), expression.Value(1))
	if update.Title != nil {
		updateExpr = updateExpr.Set(expression.Name("Title"), expression.Value(*update.Title))
	}

	expr, err := expression.NewBuilder().
		WithUpdate(updateExpr).
		WithCondition(expression.Name("PK").AttributeExists()).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName),
		Key:                       projectKey(update.ID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return nil, pkgerrors.NewNotFoundError("project")
		}
		return nil, s.mapError(ctx, "update project", update.ID, err)
	}

	saved, err := decodeProject(out.Attributes)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Project updated",
		zap.String("projectID", update.ID),
		zap.Int("bytes", len(graphJSON)),
	)
	return saved, nil
}

// Ping describes the table.
func (s *ProjectStore) Ping(ctx context.Context) error {
	if _, err := s.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)}); err != nil {
		return pkgerrors.NewUnavailableError("dynamodb").WithCause(err)
	}
	return nil
}

// mapError turns client errors into application errors. Throttling is
// reported as unavailable so the circuit breaker and clients can back off.
func (s *ProjectStore) mapError(ctx context.Context, op, id string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pkgerrors.FromContext(op, ctxErr)
	}

	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	s.logger.Error("DynamoDB request failed",
		zap.String("operation", op),
		zap.String("projectID", id),
		zap.String("error_code", code),
		zap.Error(err),
	)

	switch code {
	case "ProvisionedThroughputExceededException", "ThrottlingException", "RequestLimitExceeded":
		return pkgerrors.NewUnavailableError("dynamodb").WithCode(pkgerrors.CodeThrottled).WithCause(err)
	case "ResourceNotFoundException":
		return pkgerrors.NewUnavailableError("dynamodb").WithCode(pkgerrors.CodeTableNotFound).WithCause(err)
	}
	return pkgerrors.NewDatabaseError(op, err)
}

func decodeProject(av map[string]types.AttributeValue) (*project.Project, error) {
	var item projectItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, pkgerrors.NewDatabaseError("decode project", err)
	}

	p := &project.Project{
		ID:     strings.TrimPrefix(item.PK, projectPrefix),
		UserID: item.UserID,
		Title:  item.Title,
	}
	if item.GraphData != "" {
		if err := json.Unmarshal([]byte(item.GraphData), &p.GraphData); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode project", err)
		}
	}
	p.GraphData = p.GraphData.Clone()

	if item.UpdatedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, item.UpdatedAt)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("decode project", err)
		}
		p.UpdatedAt = parsed
	}
	return p, nil
}
