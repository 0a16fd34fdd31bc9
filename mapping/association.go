package mapping

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// Association is the part shared by [ToOne] and [OneToMany].
type Association struct {
	property
	target         reflect.Type
	associated     *Entity
	referencedName string
	inverse        Property
	owning         bool
	belongsTo      bool
	manyToOne      bool
	toOne          bool
	logger         *zap.Logger

	cascade  func() cascadeResult
	validate func() CascadeValidateType
}

type cascadeResult struct {
	set           cascadeSet
	orphanRemoval bool
}

func newAssociation(p property, target reflect.Type, toOne bool, logger *zap.Logger) Association {
	return Association{property: p, target: target, toOne: toOne, logger: logger}
}

// init installs the compute-once cells. It must run on the final address of
// the association, after the owning side was resolved.
func (a *Association) init() {
	a.cascade = sync.OnceValue(a.buildCascade)
	a.validate = sync.OnceValue(func() CascadeValidateType {
		return ParseCascadeValidate(a.mapping.CascadeValidate)
	})
}

// AssociatedEntity returns the entity on the other side.
func (a *Association) AssociatedEntity() *Entity { return a.associated }

// ReferencedPropertyName returns the name of the inverse property, or an empty
// string for unidirectional associations.
func (a *Association) ReferencedPropertyName() string { return a.referencedName }

// InverseSide returns the inverse association, or nil.
func (a *Association) InverseSide() Property { return a.inverse }

// IsBidirectional reports whether the association has an inverse side.
func (a *Association) IsBidirectional() bool { return a.inverse != nil }

// IsOwningSide reports whether this side owns the association.
func (a *Association) IsOwningSide() bool { return a.owning }

// IsManyToOne reports whether this is a to-one whose inverse is a to-many.
func (a *Association) IsManyToOne() bool { return a.manyToOne }

// IsOrphanRemoval reports whether children removed from the association
// should be deleted.
func (a *Association) IsOrphanRemoval() bool {
	return a.mapping.OrphanRemoval || a.cascade().orphanRemoval
}

// CascadeOperations returns the resolved cascade set.
func (a *Association) CascadeOperations() []CascadeType {
	return a.cascade().set.list()
}

// DoesCascade reports whether the resolved cascade set contains
// [CascadeAll] or any of ops.
func (a *Association) DoesCascade(ops ...CascadeType) bool {
	set := a.cascade().set
	if set.has(CascadeAll) {
		return true
	}
	for _, op := range ops {
		if set.has(op) {
			return true
		}
	}
	return false
}

// CascadeValidateOperation returns the resolved cascade validation type.
func (a *Association) CascadeValidateOperation() CascadeValidateType {
	return a.validate()
}

// DoesCascadeValidate reports whether validating the owner should also
// validate associated.
func (a *Association) DoesCascadeValidate(associated any) bool {
	switch a.validate() {
	case CascadeValidateNone:
		return false
	case CascadeValidateOwned:
		return a.owning
	}

	def := a.owning || a.DoesCascade(CascadePersist, CascadeMerge)

	if a.validate() == CascadeValidateDirty {
		if dc, ok := associated.(DirtyCheckable); ok {
			return def && dc.HasChanged()
		}
	}
	return def
}

func (a *Association) buildCascade() cascadeResult {
	if a.mapping.Cascade != "" {
		ops, orphan, unsupported := parseCascade(a.mapping.Cascade)
		for _, tok := range unsupported {
			a.logger.Warn("ignoring unsupported cascade token",
				zap.String("entity", a.owner.Name()),
				zap.String("property", a.name),
				zap.String("token", tok),
			)
		}
		return cascadeResult{set: newCascadeSet(ops...), orphanRemoval: orphan}
	}

	if len(a.mapping.CascadeList) > 0 {
		return cascadeResult{set: newCascadeSet(a.mapping.CascadeList...)}
	}

	if a.owning {
		return cascadeResult{set: newCascadeSet(CascadeAll)}
	}

	// an unowned many-to-one must not write through to its parent
	if a.toOne && a.manyToOne && a.IsBidirectional() {
		return cascadeResult{}
	}

	return cascadeResult{set: newCascadeSet(CascadePersist)}
}
