package dynamodb

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// PK/SK prefix constants.
const (
	prefixAutomation = "AUTO#"
	prefixBreaker    = "BREAKER#"
	prefixExecution  = "EXEC#"
	prefixCalls      = "CALLS#"
	prefixCascade    = "CASCADE#"
	prefixEvents     = "EVENTS#"

	prefixDesired     = "DESIRED#"
	prefixPattern     = "PATTERN#"
	prefixIntegration = "INTEGRATION#"
	prefixCall        = "CALL#"
	prefixAction      = "ACTION#"
	prefixResult      = "RESULT#"
	prefixValidation  = "VALIDATION#"
	prefixEvent       = "EVENT#"
	prefixPending     = "PENDING#"

	skHealth    = "HEALTH"
	skExecution = "EXECUTION"
)

func automationPK(instanceID, automationID string) string {
	return prefixAutomation + instanceID + "#" + automationID
}

func breakerPK(instanceID string) string    { return prefixBreaker + instanceID }
func executionPK(executionID string) string { return prefixExecution + executionID }
func cascadePK(cascadeID string) string     { return prefixCascade + cascadeID }
func eventsPK(instanceID string) string     { return prefixEvents + instanceID }

func callsPK(instanceID, entityID string) string {
	return prefixCalls + instanceID + "#" + entityID
}

func desiredSK(entityID string) string         { return prefixDesired + entityID }
func patternSK(entityID string) string         { return prefixPattern + entityID }
func integrationSK(integrationID string) string { return prefixIntegration + integrationID }

func pendingGSIPK(instanceID string) string { return prefixPending + instanceID }

// timestampedSK builds a sortable, collision-free sort key for append-only
// records.
func timestampedSK(prefix string, ts time.Time) string {
	nonce := make([]byte, 4)
	_, _ = rand.Read(nonce)
	return fmt.Sprintf("%s%013d#%s", prefix, ts.UnixMilli(), hex.EncodeToString(nonce))
}
