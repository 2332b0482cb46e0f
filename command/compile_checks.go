package command

import (
	gocmd "github.com/goliatone/go-command"
	deliverysync "github.com/goliatone/go-deliveries/sync"
)

var (
	_ gocmd.Commander[ReconcileMessage]             = (*ReconcileCommand)(nil)
	_ gocmd.Commander[CompleteAuthorizationMessage] = (*CompleteAuthorizationCommand)(nil)
	_ RunRecorder                                   = (*deliverysync.RunLedger)(nil)
)
