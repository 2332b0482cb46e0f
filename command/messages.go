package command

import (
	"strings"

	"github.com/goliatone/go-deliveries/core"
)

const (
	TypeReconcile             = "deliveries.command.reconcile"
	TypeCompleteAuthorization = "deliveries.command.authorization.complete"
)

type ReconcileMessage struct {
	Trigger     core.SyncRunTrigger
	RequestedBy string
}

func (ReconcileMessage) Type() string { return TypeReconcile }

func (m ReconcileMessage) Validate() error {
	switch m.Trigger {
	case "", core.SyncRunTriggerManual, core.SyncRunTriggerSchedule, core.SyncRunTriggerJob:
		return nil
	default:
		return commandValidationError("trigger", "must be one of manual, schedule or job")
	}
}

func (m ReconcileMessage) trigger() core.SyncRunTrigger {
	if m.Trigger == "" {
		return core.SyncRunTriggerManual
	}
	return m.Trigger
}

type CompleteAuthorizationMessage struct {
	Code string
}

func (CompleteAuthorizationMessage) Type() string { return TypeCompleteAuthorization }

func (m CompleteAuthorizationMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return commandValidationError("code", "authorization code is required")
	}
	return nil
}
