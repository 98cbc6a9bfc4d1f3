// Package policy holds the declarative status-transition tables shared by
// every stateful module. It is pure: no I/O, no clock, no side effects.
package policy

import "sort"

// DocType identifies a document family with its own transition table.
type DocType string

const (
	DocRFQ              DocType = "rfq"
	DocContract         DocType = "contract"
	DocSupplierContract DocType = "supplier_contract"
	DocAssignment       DocType = "assignment"
	DocSupplier         DocType = "supplier"
)

type statusSet map[string]struct{}

func set(statuses ...string) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

// transitions maps (docType, fromStatus) to the set of legal target statuses.
// A status absent from its table is terminal.
var transitions = map[DocType]map[string]statusSet{
	DocRFQ: {
		"DRAFT":           set("SENT", "CANCELLED"),
		"SENT":            set("QUOTES_RECEIVED", "CANCELLED"),
		"QUOTES_RECEIVED": set("AWARDED", "CANCELLED"),
	},
	DocContract: {
		"draft":       set("signed", "cancelled"),
		"signed":      set("in_progress", "cancelled"),
		"in_progress": set("completed", "cancelled"),
	},
	DocSupplierContract: {
		"draft":            set("pending_approval", "sent_to_supplier", "cancelled"),
		"pending_approval": set("sent_to_supplier", "cancelled"),
		"sent_to_supplier": set("signed", "cancelled"),
		"signed":           set("completed", "cancelled"),
	},
	DocAssignment: {
		"PLANNED":     set("IN_PROGRESS", "COMPLETED", "CANCELLED"),
		"IN_PROGRESS": set("COMPLETED", "CANCELLED"),
	},
	DocSupplier: {
		"PENDING_APPROVAL": set("ACTIVE", "REJECTED"),
		"ACTIVE":           set("INACTIVE", "BLACKLISTED"),
		"INACTIVE":         set("ACTIVE", "BLACKLISTED"),
		"BLACKLISTED":      set("INACTIVE"),
	},
}

// immutableStatuses lists the statuses that freeze a document's field set.
var immutableStatuses = map[DocType]statusSet{
	DocContract:         set("signed", "in_progress", "completed"),
	DocSupplierContract: set("signed", "completed"),
	DocRFQ:              set("AWARDED", "CANCELLED"),
}

// mutableWhileImmutable is the per-type allow-list of fields that stay
// writable after a document freezes (statutory retention keeps the rest).
var mutableWhileImmutable = map[DocType][]string{
	DocContract:         {"projectId", "notes", "renderedDocumentUrl"},
	DocSupplierContract: {"notes", "renderedDocumentUrl"},
	DocRFQ:              {"notes"},
}

// IsTransitionAllowed reports whether fromStatus → toStatus is legal for the
// document type. A no-op transition (from == to) is never a transition and
// is always allowed.
func IsTransitionAllowed(doc DocType, fromStatus, toStatus string) bool {
	if fromStatus == toStatus {
		return true
	}
	targets, ok := transitions[doc][fromStatus]
	if !ok {
		return false
	}
	_, ok = targets[toStatus]
	return ok
}

// IsTerminal reports whether no transition leaves the given status.
func IsTerminal(doc DocType, status string) bool {
	targets, ok := transitions[doc][status]
	return !ok || len(targets) == 0
}

// IsImmutable reports whether a document in the given status (or carrying a
// finalized flag) rejects general field updates.
func IsImmutable(doc DocType, status string, finalized bool) bool {
	if finalized {
		return true
	}
	_, ok := immutableStatuses[doc][status]
	return ok
}

// AllowedFieldsWhileImmutable returns the allow-list of fields that may
// still change on an immutable document of the given type.
func AllowedFieldsWhileImmutable(doc DocType) []string {
	fields := mutableWhileImmutable[doc]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// IsFieldAllowedWhileImmutable reports whether a single field is on the
// immutable-update allow-list.
func IsFieldAllowedWhileImmutable(doc DocType, field string) bool {
	for _, f := range mutableWhileImmutable[doc] {
		if f == field {
			return true
		}
	}
	return false
}

// AllowedTargets returns the sorted legal target statuses for error detail.
func AllowedTargets(doc DocType, fromStatus string) []string {
	targets := transitions[doc][fromStatus]
	out := make([]string, 0, len(targets))
	for st := range targets {
		out = append(out, st)
	}
	sort.Strings(out)
	return out
}
