package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// identified is implemented by every record keyed by a string uuid.
type identified interface {
	recordID() string
	setRecordID(id string)
}

func (r *credentialRecord) recordID() string      { return r.ID }
func (r *credentialRecord) setRecordID(id string) { r.ID = id }
func (r *deliveryRecord) recordID() string        { return r.ID }
func (r *deliveryRecord) setRecordID(id string)   { r.ID = id }
func (r *syncRunRecord) recordID() string         { return r.ID }
func (r *syncRunRecord) setRecordID(id string)    { r.ID = id }

func recordHandlers[T interface {
	comparable
	identified
}](newRecord func() T) repository.ModelHandlers[T] {
	var zero T
	return repository.ModelHandlers[T]{
		NewRecord: newRecord,
		GetID: func(record T) uuid.UUID {
			if record == zero {
				return uuid.Nil
			}
			return parseUUID(record.recordID())
		},
		SetID: func(record T, id uuid.UUID) {
			if record == zero {
				return
			}
			record.setRecordID(id.String())
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record T) string {
			if record == zero {
				return ""
			}
			return strings.TrimSpace(record.recordID())
		},
	}
}

func credentialHandlers() repository.ModelHandlers[*credentialRecord] {
	return recordHandlers(func() *credentialRecord { return &credentialRecord{} })
}

func deliveryHandlers() repository.ModelHandlers[*deliveryRecord] {
	return recordHandlers(func() *deliveryRecord { return &deliveryRecord{} })
}

func syncRunHandlers() repository.ModelHandlers[*syncRunRecord] {
	return recordHandlers(func() *syncRunRecord { return &syncRunRecord{} })
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
