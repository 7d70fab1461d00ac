package filestore

import (
	"context"
	"io/ioutil"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveOpen(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Save(ctx, "7_3_1700000000_abcdef12.pdf", strings.NewReader("homework"), "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "7_3_1700000000_abcdef12.pdf", ref)

	rc, err := store.Open(ctx, ref)
	require.NoError(t, err)
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "homework", string(data))

	// names are never reused
	_, err = store.Save(ctx, ref, strings.NewReader("other"), "application/pdf")
	assert.Error(t, err)
}

func TestLocalStore_InvalidRefs(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, ref := range []string{"", "../secret.txt", "/etc/passwd", "a/../../b.txt"} {
		t.Run(ref, func(t *testing.T) {
			_, err := store.Open(ctx, ref)
			assert.Equal(t, errInvalidRef, err)
			_, err = store.Save(ctx, ref, strings.NewReader("x"), "text/plain")
			assert.Equal(t, errInvalidRef, err)
		})
	}
}
