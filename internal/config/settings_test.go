package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSettingsHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pledgesync.yaml")
	body := []byte(`settings:
  receipt_policy: never
  force_recurring: true
  membership_types:
    Gold Membership: gold
`)
	require.NoError(t, os.WriteFile(path, body, 0o600))

	holder, err := NewSettingsHolder(Config{SettingsPath: path}, zaptest.NewLogger(t))
	require.NoError(t, err)

	s := holder.Get()
	assert.Equal(t, ReceiptPolicyNever, s.ReceiptPolicy)
	assert.True(t, s.ForceRecurring)
	code, ok := s.MembershipTypeFor("gold membership")
	assert.True(t, ok)
	assert.Equal(t, "gold", code)
	assert.False(t, s.ReceiptRequested(false))
}

func TestSettingsRejectsUnknownReceiptPolicy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pledgesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("settings:\n  receipt_policy: sometimes\n"), 0o600))

	_, err := NewSettingsHolder(Config{SettingsPath: path}, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestReceiptRequestedDefaultSkipsTestProcessors(t *testing.T) {
	s := DefaultSettings()
	assert.True(t, s.ReceiptRequested(false))
	assert.False(t, s.ReceiptRequested(true))
}
