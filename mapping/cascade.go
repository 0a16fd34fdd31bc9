package mapping

import (
	"strings"
)

// CascadeType is an operation that may propagate from one entity to its
// associated entities.
type CascadeType uint8

const (
	// CascadeAll propagates every operation.
	CascadeAll CascadeType = iota + 1
	// CascadePersist propagates inserts and updates.
	CascadePersist
	// CascadeMerge propagates merges.
	CascadeMerge
	// CascadeRemove propagates deletes.
	CascadeRemove
	// CascadeRefresh propagates refreshes.
	CascadeRefresh
)

func (c CascadeType) String() string {
	switch c {
	case CascadeAll:
		return "ALL"
	case CascadePersist:
		return "PERSIST"
	case CascadeMerge:
		return "MERGE"
	case CascadeRemove:
		return "REMOVE"
	case CascadeRefresh:
		return "REFRESH"
	default:
		return "UNKNOWN"
	}
}

// CascadeValidateType controls whether validation of an owner reaches its
// associated entities.
type CascadeValidateType uint8

const (
	// CascadeValidateDefault validates associated entities on the owning
	// side or when persist/merge cascades.
	CascadeValidateDefault CascadeValidateType = iota
	// CascadeValidateNone never validates associated entities.
	CascadeValidateNone
	// CascadeValidateOwned validates associated entities only on the owning
	// side.
	CascadeValidateOwned
	// CascadeValidateDirty behaves as default, but only for associated
	// entities reporting changes.
	CascadeValidateDirty
)

// ParseCascadeValidate converts a mapping string to a [CascadeValidateType].
// Unknown values resolve to [CascadeValidateDefault].
func ParseCascadeValidate(s string) CascadeValidateType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return CascadeValidateNone
	case "owned":
		return CascadeValidateOwned
	case "dirty":
		return CascadeValidateDirty
	default:
		return CascadeValidateDefault
	}
}

// DirtyCheckable is implemented by entities able to report whether they were
// modified since loaded.
type DirtyCheckable interface {
	HasChanged() bool
}

type cascadeToken struct {
	ops          []CascadeType
	deleteOrphan bool
}

var cascadeVocabulary = map[string]cascadeToken{
	"all":               {ops: []CascadeType{CascadeAll}},
	"all-delete-orphan": {ops: []CascadeType{CascadeAll}, deleteOrphan: true},
	"merge":             {ops: []CascadeType{CascadeMerge}},
	"save-update":       {ops: []CascadeType{CascadePersist}},
	"delete":            {ops: []CascadeType{CascadeRemove}},
	"remove":            {ops: []CascadeType{CascadeRemove}},
	"delete-orphan":     {deleteOrphan: true},
	"refresh":           {ops: []CascadeType{CascadeRefresh}},
	"persist":           {ops: []CascadeType{CascadePersist}},
}

// parseCascade tokenizes a comma separated cascade string. Unsupported
// tokens are returned separately so the caller can report them.
func parseCascade(s string) (ops []CascadeType, orphanRemoval bool, unsupported []string) {
	for _, tok := range strings.Split(s, ",") {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		known, ok := cascadeVocabulary[tok]
		if !ok {
			unsupported = append(unsupported, tok)
			continue
		}
		ops = append(ops, known.ops...)
		orphanRemoval = orphanRemoval || known.deleteOrphan
	}
	return ops, orphanRemoval, unsupported
}

type cascadeSet uint8

func newCascadeSet(ops ...CascadeType) cascadeSet {
	var s cascadeSet
	for _, op := range ops {
		s |= 1 << op
	}
	return s
}

func (s cascadeSet) has(op CascadeType) bool {
	return s&(1<<op) != 0
}

func (s cascadeSet) list() []CascadeType {
	var res []CascadeType
	for op := CascadeAll; op <= CascadeRefresh; op++ {
		if s.has(op) {
			res = append(res, op)
		}
	}
	return res
}
