package knowledge

import "fmt"

type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

// ChangeEvent describes one remote insert, update or delete. Record is set for
// INSERT and UPDATE, ID for DELETE.
type ChangeEvent struct {
	Kind   ChangeKind
	Record *CourseRecord
	ID     int64
}

func Inserted(rec *CourseRecord) ChangeEvent { return ChangeEvent{Kind: ChangeInsert, Record: rec} }
func Updated(rec *CourseRecord) ChangeEvent  { return ChangeEvent{Kind: ChangeUpdate, Record: rec} }
func Deleted(id int64) ChangeEvent           { return ChangeEvent{Kind: ChangeDelete, ID: id} }

// TargetID is the record id the event refers to.
func (e ChangeEvent) TargetID() int64 {
	if e.Kind == ChangeDelete {
		return e.ID
	}
	if e.Record != nil {
		return e.Record.ID
	}
	return 0
}

func (e ChangeEvent) Validate() error {
	switch e.Kind {
	case ChangeInsert, ChangeUpdate:
		if e.Record == nil || e.Record.ID <= 0 {
			return fmt.Errorf("%s event without a persisted record", e.Kind)
		}
	case ChangeDelete:
		if e.ID <= 0 {
			return fmt.Errorf("DELETE event without an id")
		}
	default:
		return fmt.Errorf("unknown change kind %q", e.Kind)
	}
	return nil
}
