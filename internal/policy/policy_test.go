package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContractTransitions(t *testing.T) {
	require.True(t, IsTransitionAllowed(DocContract, "draft", "signed"))
	require.True(t, IsTransitionAllowed(DocContract, "draft", "cancelled"))
	require.True(t, IsTransitionAllowed(DocContract, "signed", "in_progress"))
	require.True(t, IsTransitionAllowed(DocContract, "in_progress", "completed"))

	require.False(t, IsTransitionAllowed(DocContract, "draft", "in_progress"))
	require.False(t, IsTransitionAllowed(DocContract, "draft", "completed"))
	require.False(t, IsTransitionAllowed(DocContract, "signed", "draft"))
	require.False(t, IsTransitionAllowed(DocContract, "completed", "cancelled"))
	require.False(t, IsTransitionAllowed(DocContract, "cancelled", "draft"))
}

func TestTerminalStatuses(t *testing.T) {
	require.True(t, IsTerminal(DocContract, "completed"))
	require.True(t, IsTerminal(DocContract, "cancelled"))
	require.True(t, IsTerminal(DocRFQ, "AWARDED"))
	require.True(t, IsTerminal(DocAssignment, "COMPLETED"))
	require.True(t, IsTerminal(DocSupplier, "REJECTED"))
	require.False(t, IsTerminal(DocSupplier, "BLACKLISTED"))
	require.False(t, IsTerminal(DocContract, "draft"))
}

func TestNoOpTransitionAlwaysAllowed(t *testing.T) {
	require.True(t, IsTransitionAllowed(DocRFQ, "QUOTES_RECEIVED", "QUOTES_RECEIVED"))
	require.True(t, IsTransitionAllowed(DocContract, "completed", "completed"))
}

func TestImmutability(t *testing.T) {
	require.False(t, IsImmutable(DocContract, "draft", false))
	require.True(t, IsImmutable(DocContract, "draft", true))
	require.True(t, IsImmutable(DocContract, "signed", false))
	require.True(t, IsImmutable(DocContract, "in_progress", false))
	require.True(t, IsImmutable(DocContract, "completed", false))
	require.False(t, IsImmutable(DocSupplierContract, "pending_approval", false))
	require.True(t, IsImmutable(DocSupplierContract, "signed", false))
}

func TestAllowedFieldsWhileImmutable(t *testing.T) {
	fields := AllowedFieldsWhileImmutable(DocContract)
	require.ElementsMatch(t, []string{"projectId", "notes", "renderedDocumentUrl"}, fields)

	require.True(t, IsFieldAllowedWhileImmutable(DocContract, "notes"))
	require.False(t, IsFieldAllowedWhileImmutable(DocContract, "lineItems"))
	require.False(t, IsFieldAllowedWhileImmutable(DocContract, "total"))
}

func TestAllowedTargetsSorted(t *testing.T) {
	require.Equal(t, []string{"cancelled", "signed"}, AllowedTargets(DocContract, "draft"))
	require.Empty(t, AllowedTargets(DocContract, "completed"))
}

func TestSupplierLifecycle(t *testing.T) {
	require.True(t, IsTransitionAllowed(DocSupplier, "PENDING_APPROVAL", "ACTIVE"))
	require.True(t, IsTransitionAllowed(DocSupplier, "PENDING_APPROVAL", "REJECTED"))
	require.True(t, IsTransitionAllowed(DocSupplier, "BLACKLISTED", "INACTIVE"))
	// Reinstatement never restores ACTIVE directly.
	require.False(t, IsTransitionAllowed(DocSupplier, "BLACKLISTED", "ACTIVE"))
	require.False(t, IsTransitionAllowed(DocSupplier, "REJECTED", "ACTIVE"))
}
