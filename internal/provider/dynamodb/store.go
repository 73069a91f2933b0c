package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/halcyon-systems/halcyon/internal/provider"
	"github.com/halcyon-systems/halcyon/pkg/types"
)

// Compile-time interface satisfaction check.
var _ provider.Store = (*Store)(nil)

// putRecord writes one item with the record marshaled under "data".
func (s *Store) putRecord(ctx context.Context, pk, sk string, record interface{}, extra map[string]ddbtypes.AttributeValue) error {
	data, err := attributevalue.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}
	item := map[string]ddbtypes.AttributeValue{
		"PK":   &ddbtypes.AttributeValueMemberS{Value: pk},
		"SK":   &ddbtypes.AttributeValueMemberS{Value: sk},
		"data": data,
		"ttl":  &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlEpoch(s.retentionTTL))},
	}
	for k, v := range extra {
		item[k] = v
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	return err
}

// getRecord reads one item and unmarshals "data" into out. Returns false when
// the item does not exist.
func (s *Store) getRecord(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.tableName,
		ConsistentRead: aws.Bool(true),
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, err
	}
	if resp.Item == nil {
		return false, nil
	}
	av, ok := resp.Item["data"]
	if !ok {
		return false, fmt.Errorf("item %s/%s has no data attribute", pk, sk)
	}
	if err := attributevalue.Unmarshal(av, out); err != nil {
		return false, err
	}
	return true, nil
}

// queryRecords queries a partition with an SK prefix and unmarshals every
// "data" attribute through decode.
func (s *Store) queryRecords(ctx context.Context, pk, skPrefix string, forward bool, limit int, decode func(ddbtypes.AttributeValue) error) error {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk": &ddbtypes.AttributeValueMemberS{Value: pk},
			":sk": &ddbtypes.AttributeValueMemberS{Value: skPrefix},
		},
		ScanIndexForward: aws.Bool(forward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	resp, err := s.client.Query(ctx, input)
	if err != nil {
		return err
	}
	for _, item := range resp.Items {
		av, ok := item["data"]
		if !ok {
			continue
		}
		if err := decode(av); err != nil {
			s.logger.Warn("skipping corrupt item", "pk", pk, "error", err)
		}
	}
	return nil
}

// compareAndSwap conditionally replaces a versioned record.
func (s *Store) compareAndSwap(ctx context.Context, pk, sk string, record interface{}, expectedVersion, newVersion int) (bool, error) {
	data, err := attributevalue.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("marshaling versioned record: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]ddbtypes.AttributeValue{
			"PK": &ddbtypes.AttributeValueMemberS{Value: pk},
			"SK": &ddbtypes.AttributeValueMemberS{Value: sk},
		},
		UpdateExpression: aws.String("SET #data = :data, #version = :newVersion"),
		ExpressionAttributeNames: map[string]string{
			"#data":    "data",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":data":       data,
			":newVersion": &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", newVersion)},
		},
	}
	if expectedVersion == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(#version)")
	} else {
		input.ConditionExpression = aws.String("#version = :expectedVersion")
		input.ExpressionAttributeValues[":expectedVersion"] = &ddbtypes.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)}
	}

	_, err = s.client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PutDesiredState stores a desired state, replacing any prior row for the key.
func (s *Store) PutDesiredState(ctx context.Context, ds types.DesiredState) error {
	return s.putRecord(ctx, automationPK(ds.InstanceID, ds.AutomationID), desiredSK(ds.EntityID), ds, nil)
}

// GetDesiredState returns the desired state for a key, or nil when absent.
func (s *Store) GetDesiredState(ctx context.Context, instanceID, automationID, entityID string) (*types.DesiredState, error) {
	var ds types.DesiredState
	ok, err := s.getRecord(ctx, automationPK(instanceID, automationID), desiredSK(entityID), &ds)
	if err != nil || !ok {
		return nil, err
	}
	return &ds, nil
}

// ListDesiredStates returns every desired state for an automation.
func (s *Store) ListDesiredStates(ctx context.Context, instanceID, automationID string) ([]types.DesiredState, error) {
	var out []types.DesiredState
	err := s.queryRecords(ctx, automationPK(instanceID, automationID), prefixDesired, true, 0, func(av ddbtypes.AttributeValue) error {
		var ds types.DesiredState
		if err := attributevalue.Unmarshal(av, &ds); err != nil {
			return err
		}
		out = append(out, ds)
		return nil
	})
	return out, err
}

// GetPattern returns the outcome pattern for a key, or nil when absent.
func (s *Store) GetPattern(ctx context.Context, instanceID, automationID, entityID string) (*types.OutcomePattern, error) {
	var p types.OutcomePattern
	ok, err := s.getRecord(ctx, automationPK(instanceID, automationID), patternSK(entityID), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// PutPattern stores a pattern, replacing any prior row for the key.
func (s *Store) PutPattern(ctx context.Context, p types.OutcomePattern) error {
	return s.putRecord(ctx, automationPK(p.InstanceID, p.AutomationID), patternSK(p.EntityID), p, nil)
}

// ListPatterns returns every pattern for an automation.
func (s *Store) ListPatterns(ctx context.Context, instanceID, automationID string) ([]types.OutcomePattern, error) {
	var out []types.OutcomePattern
	err := s.queryRecords(ctx, automationPK(instanceID, automationID), prefixPattern, true, 0, func(av ddbtypes.AttributeValue) error {
		var p types.OutcomePattern
		if err := attributevalue.Unmarshal(av, &p); err != nil {
			return err
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

// GetHealth returns the health status for an automation, or nil when absent.
func (s *Store) GetHealth(ctx context.Context, instanceID, automationID string) (*types.AutomationHealthStatus, error) {
	var h types.AutomationHealthStatus
	ok, err := s.getRecord(ctx, automationPK(instanceID, automationID), skHealth, &h)
	if err != nil || !ok {
		return nil, err
	}
	return &h, nil
}

// CompareAndSwapHealth writes a health status if the stored version matches.
func (s *Store) CompareAndSwapHealth(ctx context.Context, status types.AutomationHealthStatus, expectedVersion int) (bool, error) {
	return s.compareAndSwap(ctx, automationPK(status.InstanceID, status.AutomationID), skHealth, status, expectedVersion, status.Version)
}

// GetBreaker returns the breaker record for an integration, or nil when absent.
func (s *Store) GetBreaker(ctx context.Context, instanceID, integrationID string) (*types.CircuitBreakerRecord, error) {
	var r types.CircuitBreakerRecord
	ok, err := s.getRecord(ctx, breakerPK(instanceID), integrationSK(integrationID), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// CompareAndSwapBreaker writes a breaker record if the stored version matches.
func (s *Store) CompareAndSwapBreaker(ctx context.Context, record types.CircuitBreakerRecord, expectedVersion int) (bool, error) {
	return s.compareAndSwap(ctx, breakerPK(record.InstanceID), integrationSK(record.IntegrationID), record, expectedVersion, record.Version)
}

// ListBreakers returns every breaker record for an instance.
func (s *Store) ListBreakers(ctx context.Context, instanceID string) ([]types.CircuitBreakerRecord, error) {
	var out []types.CircuitBreakerRecord
	err := s.queryRecords(ctx, breakerPK(instanceID), prefixIntegration, true, 0, func(av ddbtypes.AttributeValue) error {
		var r types.CircuitBreakerRecord
		if err := attributevalue.Unmarshal(av, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// PutExecution stores an execution record. Unvalidated executions are
// indexed on GSI1 for the pending validation sweep; validated ones drop off
// the index.
func (s *Store) PutExecution(ctx context.Context, rec types.ExecutionRecord) error {
	extra := map[string]ddbtypes.AttributeValue{}
	if !rec.Validated {
		extra["GSI1PK"] = &ddbtypes.AttributeValueMemberS{Value: pendingGSIPK(rec.InstanceID)}
		extra["GSI1SK"] = &ddbtypes.AttributeValueMemberS{Value: rec.ExecutedAt.UTC().Format(time.RFC3339Nano)}
	}
	if err := s.putRecord(ctx, executionPK(rec.ExecutionID), skExecution, rec, extra); err != nil {
		return err
	}
	if rec.Validated {
		// Clear the pending index attributes left by the unvalidated write.
		_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: &s.tableName,
			Key: map[string]ddbtypes.AttributeValue{
				"PK": &ddbtypes.AttributeValueMemberS{Value: executionPK(rec.ExecutionID)},
				"SK": &ddbtypes.AttributeValueMemberS{Value: skExecution},
			},
			UpdateExpression: aws.String("REMOVE GSI1PK, GSI1SK"),
		})
		if err != nil {
			s.logger.Warn("clearing pending index failed", "execution", rec.ExecutionID, "error", err)
		}
	}
	return nil
}

// GetExecution returns an execution record by id.
func (s *Store) GetExecution(ctx context.Context, executionID string) (*types.ExecutionRecord, error) {
	var rec types.ExecutionRecord
	ok, err := s.getRecord(ctx, executionPK(executionID), skExecution, &rec)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("execution %q not found", executionID)
	}
	return &rec, nil
}

// ListPendingExecutions returns unvalidated executions executed before the
// cutoff, oldest first.
func (s *Store) ListPendingExecutions(ctx context.Context, instanceID string, executedBefore time.Time, limit int) ([]types.ExecutionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK < :cutoff"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: pendingGSIPK(instanceID)},
			":cutoff": &ddbtypes.AttributeValueMemberS{Value: executedBefore.UTC().Format(time.RFC3339Nano)},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	resp, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, err
	}
	var out []types.ExecutionRecord
	for _, item := range resp.Items {
		av, ok := item["data"]
		if !ok {
			continue
		}
		var rec types.ExecutionRecord
		if err := attributevalue.Unmarshal(av, &rec); err != nil {
			s.logger.Warn("skipping corrupt pending execution", "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// MarkExecutionValidated flags an execution as validated.
func (s *Store) MarkExecutionValidated(ctx context.Context, executionID string) error {
	rec, err := s.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	rec.Validated = true
	return s.PutExecution(ctx, *rec)
}

// PutServiceCall appends a service-call record for an entity.
func (s *Store) PutServiceCall(ctx context.Context, call types.ServiceCall) error {
	sk := timestampedSK(prefixCall, call.CalledAt)
	return s.putRecord(ctx, callsPK(call.InstanceID, call.EntityID), sk, call, nil)
}

// LastServiceCall returns the most recent service call for an entity, or nil
// when none was recorded.
func (s *Store) LastServiceCall(ctx context.Context, instanceID, entityID string) (*types.ServiceCall, error) {
	var out *types.ServiceCall
	err := s.queryRecords(ctx, callsPK(instanceID, entityID), prefixCall, false, 1, func(av ddbtypes.AttributeValue) error {
		var call types.ServiceCall
		if err := attributevalue.Unmarshal(av, &call); err != nil {
			return err
		}
		out = &call
		return nil
	})
	return out, err
}

// AppendHealingAction appends a per-attempt healing record.
func (s *Store) AppendHealingAction(ctx context.Context, action types.HealingAction) error {
	sk := timestampedSK(prefixAction, action.Timestamp)
	return s.putRecord(ctx, cascadePK(action.CascadeID), sk, action, nil)
}

// ListHealingActions returns the healing actions recorded for a cascade.
func (s *Store) ListHealingActions(ctx context.Context, cascadeID string) ([]types.HealingAction, error) {
	var out []types.HealingAction
	err := s.queryRecords(ctx, cascadePK(cascadeID), prefixAction, true, 0, func(av ddbtypes.AttributeValue) error {
		var a types.HealingAction
		if err := attributevalue.Unmarshal(av, &a); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// PutCascadeResult appends a cascade summary under the automation partition.
func (s *Store) PutCascadeResult(ctx context.Context, result types.CascadeResult) error {
	sk := timestampedSK(prefixResult, result.CompletedAt)
	return s.putRecord(ctx, automationPK(result.InstanceID, result.AutomationID), sk, result, nil)
}

// ListCascadeResults returns cascade summaries for an automation, newest first.
func (s *Store) ListCascadeResults(ctx context.Context, instanceID, automationID string, limit int) ([]types.CascadeResult, error) {
	var out []types.CascadeResult
	err := s.queryRecords(ctx, automationPK(instanceID, automationID), prefixResult, false, limit, func(av ddbtypes.AttributeValue) error {
		var r types.CascadeResult
		if err := attributevalue.Unmarshal(av, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// PutValidation appends a validation result under the execution partition.
func (s *Store) PutValidation(ctx context.Context, result types.ValidationResult) error {
	sk := timestampedSK(prefixValidation, result.ValidatedAt)
	return s.putRecord(ctx, executionPK(result.ExecutionID), sk, result, nil)
}

// ListValidations returns validation results for an execution, oldest first.
func (s *Store) ListValidations(ctx context.Context, executionID string) ([]types.ValidationResult, error) {
	var out []types.ValidationResult
	err := s.queryRecords(ctx, executionPK(executionID), prefixValidation, true, 0, func(av ddbtypes.AttributeValue) error {
		var v types.ValidationResult
		if err := attributevalue.Unmarshal(av, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}

// AppendEvent appends an audit event.
func (s *Store) AppendEvent(ctx context.Context, event types.Event) error {
	sk := timestampedSK(prefixEvent, event.Timestamp)
	return s.putRecord(ctx, eventsPK(event.InstanceID), sk, event, nil)
}

// ListEvents returns the newest events for an instance.
func (s *Store) ListEvents(ctx context.Context, instanceID string, limit int) ([]types.Event, error) {
	var out []types.Event
	err := s.queryRecords(ctx, eventsPK(instanceID), prefixEvent, false, limit, func(av ddbtypes.AttributeValue) error {
		var e types.Event
		if err := attributevalue.Unmarshal(av, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
