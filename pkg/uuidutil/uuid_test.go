package uuidutil_test

import (
	"regexp"
	"testing"

	"github.com/jvs-project/taskstate/pkg/uuidutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	v4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	v7Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func TestNewV4_Format(t *testing.T) {
	id := uuidutil.NewV4()
	require.Regexp(t, v4Pattern, id)
	assert.True(t, uuidutil.Valid(id))
}

func TestNewV4_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := uuidutil.NewV4()
		assert.False(t, seen[id], "duplicate UUID: %s", id)
		seen[id] = true
	}
}

func TestNewV7_FormatAndOrder(t *testing.T) {
	prev := uuidutil.NewV7()
	require.Regexp(t, v7Pattern, prev)
	for i := 0; i < 100; i++ {
		next := uuidutil.NewV7()
		assert.Greater(t, next, prev)
		prev = next
	}
}

func TestValid(t *testing.T) {
	assert.False(t, uuidutil.Valid("not-a-uuid"))
	assert.False(t, uuidutil.Valid(""))
}
