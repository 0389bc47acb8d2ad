// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType names a board operation
type OperationType string

const (
	OperationDeploy               OperationType = "DEPLOY"
	OperationConnect              OperationType = "CONNECT"
	OperationDisconnect           OperationType = "DISCONNECT"
	OperationSetPinMode           OperationType = "SET_PIN_MODE"
	OperationApplyPinModes        OperationType = "APPLY_PIN_MODES"
	OperationDigitalWrite         OperationType = "DIGITAL_WRITE"
	OperationMultipleDigitalWrite OperationType = "MULTIPLE_DIGITAL_WRITE"
	OperationDigitalRead          OperationType = "DIGITAL_READ"
	OperationAnalogWrite          OperationType = "ANALOG_WRITE"
	OperationMultipleAnalogWrite  OperationType = "MULTIPLE_ANALOG_WRITE"
	OperationAnalogRead           OperationType = "ANALOG_READ"
	OperationServoRotate          OperationType = "SERVO_ROTATE"
	OperationMultipleServoRotate  OperationType = "MULTIPLE_SERVO_ROTATE"
	OperationReadLine             OperationType = "READ_LINE"
	OperationCancelRead           OperationType = "CANCEL_READ"
	OperationSetPulseParams       OperationType = "SET_PULSE_PARAMS"
	OperationPulseOn              OperationType = "PULSE_ON"
	OperationPulseOff             OperationType = "PULSE_OFF"
)

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusSuccess OperationStatus = "SUCCESS"
	OperationStatusFailed  OperationStatus = "FAILED"
)

// OperationRecord is the result returned for every board operation
type OperationRecord struct {
	ID            uuid.UUID       `json:"id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	StartedAt     time.Time       `json:"started_at"`
	DurationMs    int64           `json:"duration_ms"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Result        any             `json:"result,omitempty"`
}

// NewOperationRecord starts a record for opType
func NewOperationRecord(opType OperationType) *OperationRecord {
	return &OperationRecord{
		ID:            uuid.New(),
		OperationType: opType,
		StartedAt:     time.Now(),
	}
}

// Complete fills status and duration from err
func (op *OperationRecord) Complete(err error) {
	op.DurationMs = time.Since(op.StartedAt).Milliseconds()
	if err != nil {
		op.Status = OperationStatusFailed
		op.ErrorMessage = err.Error()
		return
	}
	op.Status = OperationStatusSuccess
}
