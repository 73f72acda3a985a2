package domain

import (
	"context"
	"errors"
	"fmt"
)

// Resolver materializes the object of kind t with the given uid while a
// record is being decoded. Implementations guarantee at most one live
// instance per (kind, uid) for the duration of a load.
type Resolver interface {
	Resolve(ctx context.Context, t ObjType, uid int) (Object, error)
}

// Storage is the persistence contract the engine drives at save, delete
// and template boundaries. Implementations own their transaction scope and
// must be safe for concurrent use.
type Storage interface {
	// Load fills obj, identified by its kind and UID, from storage.
	// Children and link targets are obtained through r. It returns an
	// ErrNotFound when no such object was saved.
	Load(ctx context.Context, obj Object, r Resolver) error
	// Save persists obj, assigning uids to new objects. With saveChildren
	// set the owned subtree is persisted as well. Unsaved link targets
	// that are not broken are saved alongside.
	Save(ctx context.Context, obj Object, saveChildren bool) error
	// Delete removes obj and, with deleteChildren set, its owned subtree.
	Delete(ctx context.Context, obj Object, deleteChildren bool) error
	// TemplateUsedByOther reports whether any parent other than
	// excludeParentUID links the template (t, uid).
	TemplateUsedByOther(ctx context.Context, excludeParentUID, uid int, t ObjType) (bool, error)
	// LinkTemplate records that parentUID references the template obj.
	LinkTemplate(ctx context.Context, parentUID int, obj Object) error
	// UnlinkTemplate drops the reference from parentUID to (t, uid).
	UnlinkTemplate(ctx context.Context, parentUID, uid int, t ObjType) error
	// TemplateUIDs lists the persisted templates of kind t.
	TemplateUIDs(ctx context.Context, t ObjType) ([]int, error)
}

// ErrNotFound reports a missing persisted object.
type ErrNotFound struct {
	Type ObjType
	UID  int
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %d not found", e.Type, e.UID)
}

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
