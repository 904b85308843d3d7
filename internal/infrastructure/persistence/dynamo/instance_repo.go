package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/garyjia/fulfillment-engine/internal/application/port"
	"github.com/garyjia/fulfillment-engine/internal/domain/entity"
	"github.com/garyjia/fulfillment-engine/internal/domain/workflow"
	"go.uber.org/zap"
)

const (
	attrID       = "id"
	attrKind     = "kind"
	attrState    = "state"
	attrRevision = "revision"
)

// instanceItem is one instance aggregate stored as a single item.
//
// Table requirements:
//   - PK: id (string)
type instanceItem struct {
	ID        string        `dynamodbav:"id"`
	Kind      string        `dynamodbav:"kind"`
	State     string        `dynamodbav:"state"`
	HeldFrom  string        `dynamodbav:"held_from,omitempty"`
	Revision  int64         `dynamodbav:"revision"`
	CreatedAt string        `dynamodbav:"created_at"`
	UpdatedAt string        `dynamodbav:"updated_at"`
	History   []historyItem `dynamodbav:"history"`
	// Payload is the kind-specific document as JSON. Line items carry
	// decimal rates that attributevalue cannot encode.
	Payload string `dynamodbav:"payload"`
}

type historyItem struct {
	Sequence  int64  `dynamodbav:"sequence_number"`
	FromState string `dynamodbav:"from_state"`
	ToState   string `dynamodbav:"to_state"`
	Event     string `dynamodbav:"event"`
	Actor     string `dynamodbav:"actor"`
	Notes     string `dynamodbav:"notes,omitempty"`
	Timestamp string `dynamodbav:"timestamp"`
}

type payloadDocument struct {
	Order        *entity.OrderPayload        `json:"order,omitempty"`
	Installation *entity.InstallationPayload `json:"installation,omitempty"`
}

// InstanceRepository implements port.InstanceRepository on DynamoDB. The
// revision attribute is the write condition, so a save either replaces the
// whole aggregate or fails without effect.
type InstanceRepository struct {
	api       API
	tableName string
	logger    *zap.Logger
}

var _ port.InstanceRepository = (*InstanceRepository)(nil)

// NewInstanceRepository creates a repository on the given table
func NewInstanceRepository(api API, tableName string, logger *zap.Logger) *InstanceRepository {
	if tableName == "" {
		tableName = DefaultTableName
	}
	return &InstanceRepository{
		api:       api,
		tableName: tableName,
		logger:    logger,
	}
}

// Create stores a new instance at revision 1
func (r *InstanceRepository) Create(ctx context.Context, inst *entity.Instance) error {
	av, err := r.marshal(inst, 1)
	if err != nil {
		return err
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": attrID},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return fmt.Errorf("instance %s already exists", inst.ID)
		}
		r.logger.Error("Failed to create instance", zap.String("instance_id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to put instance: %w", err)
	}

	inst.Revision = 1
	return nil
}

// GetByID loads an instance with a consistent read
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*entity.Instance, error) {
	out, err := r.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            keyOf(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		r.logger.Error("Failed to get instance", zap.String("instance_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, id)
	}
	return r.unmarshal(out.Item)
}

// List scans the table, then orders newest first and pages in memory
func (r *InstanceRepository) List(ctx context.Context, filter port.ListFilter, page port.Page) ([]*entity.Instance, error) {
	page = page.Normalize()

	input := &dynamodb.ScanInput{
		TableName:      aws.String(r.tableName),
		ConsistentRead: aws.Bool(true),
	}
	var conds []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if filter.Kind != "" {
		conds = append(conds, "#kind = :kind")
		names["#kind"] = attrKind
		values[":kind"] = &types.AttributeValueMemberS{Value: string(filter.Kind)}
	}
	if filter.State != "" {
		conds = append(conds, "#state = :state")
		names["#state"] = attrState
		values[":state"] = &types.AttributeValueMemberS{Value: string(filter.State)}
	}
	if len(conds) > 0 {
		input.FilterExpression = aws.String(strings.Join(conds, " AND "))
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	var all []*entity.Instance
	for {
		out, err := r.api.Scan(ctx, input)
		if err != nil {
			r.logger.Error("Failed to scan instances", zap.Error(err))
			return nil, fmt.Errorf("failed to scan instances: %w", err)
		}
		for _, item := range out.Items {
			inst, err := r.unmarshal(item)
			if err != nil {
				return nil, err
			}
			all = append(all, inst)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	if page.Offset >= len(all) {
		return []*entity.Instance{}, nil
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[page.Offset:end], nil
}

// Save replaces the stored aggregate if its revision equals expectedRevision
func (r *InstanceRepository) Save(ctx context.Context, inst *entity.Instance, expectedRevision int64) error {
	next := expectedRevision + 1
	av, err := r.marshal(inst, next)
	if err != nil {
		return err
	}

	_, err = r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     av,
		ConditionExpression:      aws.String("#revision = :expected"),
		ExpressionAttributeNames: map[string]string{"#revision": attrRevision},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedRevision, 10)},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			if len(cfe.Item) == 0 {
				return fmt.Errorf("%w: %s", workflow.ErrInstanceNotFound, inst.ID)
			}
			var current struct {
				Revision int64 `dynamodbav:"revision"`
			}
			_ = attributevalue.UnmarshalMap(cfe.Item, &current)
			return fmt.Errorf("%w: %s expected revision %d, found %d",
				workflow.ErrConcurrentModification, inst.ID, expectedRevision, current.Revision)
		}
		r.logger.Error("Failed to save instance", zap.String("instance_id", inst.ID), zap.Error(err))
		return fmt.Errorf("failed to put instance: %w", err)
	}

	inst.Revision = next
	return nil
}

func (r *InstanceRepository) marshal(inst *entity.Instance, revision int64) (map[string]types.AttributeValue, error) {
	payload, err := json.Marshal(payloadDocument{Order: inst.Order, Installation: inst.Installation})
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload of %s: %w", inst.ID, err)
	}

	it := instanceItem{
		ID:        inst.ID,
		Kind:      string(inst.Kind),
		State:     string(inst.State),
		HeldFrom:  string(inst.HeldFrom),
		Revision:  revision,
		CreatedAt: formatTime(inst.CreatedAt),
		UpdatedAt: formatTime(inst.UpdatedAt),
		History:   make([]historyItem, 0, len(inst.History)),
		Payload:   string(payload),
	}
	for _, h := range inst.History {
		it.History = append(it.History, historyItem{
			Sequence:  h.Sequence,
			FromState: string(h.FromState),
			ToState:   string(h.ToState),
			Event:     string(h.Event),
			Actor:     h.Actor,
			Notes:     h.Notes,
			Timestamp: formatTime(h.Timestamp),
		})
	}

	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instance %s: %w", inst.ID, err)
	}
	return av, nil
}

func (r *InstanceRepository) unmarshal(item map[string]types.AttributeValue) (*entity.Instance, error) {
	var it instanceItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance: %w", err)
	}

	inst := &entity.Instance{
		ID:        it.ID,
		Kind:      entity.Kind(it.Kind),
		State:     workflow.State(it.State),
		HeldFrom:  workflow.State(it.HeldFrom),
		Revision:  it.Revision,
		CreatedAt: parseTime(it.CreatedAt),
		UpdatedAt: parseTime(it.UpdatedAt),
		History:   make([]entity.HistoryEntry, 0, len(it.History)),
	}
	for _, h := range it.History {
		inst.History = append(inst.History, entity.HistoryEntry{
			Sequence:  h.Sequence,
			FromState: workflow.State(h.FromState),
			ToState:   workflow.State(h.ToState),
			Event:     workflow.Event(h.Event),
			Actor:     h.Actor,
			Notes:     h.Notes,
			Timestamp: parseTime(h.Timestamp),
		})
	}

	var doc payloadDocument
	if err := json.Unmarshal([]byte(it.Payload), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode payload of %s: %w", it.ID, err)
	}
	inst.Order = doc.Order
	inst.Installation = doc.Installation
	if inst.Order != nil {
		if err := inst.Order.Reprice(); err != nil {
			return nil, fmt.Errorf("stored order %s does not price: %w", it.ID, err)
		}
	}

	if err := inst.CheckInvariants(); err != nil {
		r.logger.Error("Stored instance violates invariants", zap.String("instance_id", it.ID), zap.Error(err))
		return nil, fmt.Errorf("corrupt instance: %w", err)
	}
	return inst, nil
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrID: &types.AttributeValueMemberS{Value: id},
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t.UTC()
}
