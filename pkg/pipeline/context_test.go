package pipeline

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_RunIDsAreUnique(t *testing.T) {
	a := New()
	b := New()

	assert.NotEmpty(t, a.RunID())
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestNamespace_Basics(t *testing.T) {
	c := New(WithParameters(map[string]any{"region": "eu"}))

	value, ok := c.Parameters().Get("region")
	require.True(t, ok)
	assert.Equal(t, "eu", value)

	c.Items().Set("count", 3)
	assert.Equal(t, 1, c.Items().Len())

	c.Items().Delete("count")
	_, ok = c.Items().Get("count")
	assert.False(t, ok)
}

func TestChild_IsolatedStartsEmpty(t *testing.T) {
	parent := New()
	parent.Parameters().Set("key", "value")
	parent.Items().Set("item", 1)
	parent.Properties().Set("prop", true)

	child := parent.Child(Isolated())

	assert.Zero(t, child.Parameters().Len())
	assert.Zero(t, child.Items().Len())
	assert.Zero(t, child.Properties().Len())
}

func TestChild_InheritAllCopiesByValue(t *testing.T) {
	parent := New()
	parent.Parameters().Set("key", "original")

	child := parent.Child(InheritAll())

	value, ok := child.Parameters().Get("key")
	require.True(t, ok)
	assert.Equal(t, "original", value)

	// Mutations do not leak in either direction.
	parent.Parameters().Set("key", "parent-changed")
	value, _ = child.Parameters().Get("key")
	assert.Equal(t, "original", value)

	child.Parameters().Set("key", "child-changed")
	value, _ = parent.Parameters().Get("key")
	assert.Equal(t, "parent-changed", value)
}

func TestChild_SiblingsAreIndependent(t *testing.T) {
	parent := New()
	parent.Items().Set("seed", 1)

	first := parent.Child(InheritAll())

	// Mutating the parent after one child was created never affects a
	// sibling created earlier.
	parent.Items().Set("seed", 2)

	second := parent.Child(InheritAll())

	v1, _ := first.Items().Get("seed")
	v2, _ := second.Items().Get("seed")

	assert.Equal(t, 1, v1)
	assert.Equal(t, 2, v2)

	first.Items().Set("seed", 99)
	v2, _ = second.Items().Get("seed")
	assert.Equal(t, 2, v2)
}

func TestChild_PartialInheritance(t *testing.T) {
	parent := New()
	parent.Parameters().Set("p", 1)
	parent.Items().Set("i", 2)
	parent.Properties().Set("pr", 3)

	child := parent.Child(Inheritance{Items: true})

	assert.Zero(t, child.Parameters().Len())
	assert.Zero(t, child.Properties().Len())

	value, ok := child.Items().Get("i")
	require.True(t, ok)
	assert.Equal(t, 2, value)
}

func TestShared_ConcurrentUpdates(t *testing.T) {
	c := New()

	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			c.Shared().Update("counter", func(current any, ok bool) any {
				if !ok {
					return 1
				}

				return current.(int) + 1
			})
		}()
	}

	wg.Wait()

	value, ok := c.Shared().Get("counter")
	require.True(t, ok)
	assert.Equal(t, 50, value)
}

func TestContext_Cancel(t *testing.T) {
	c := New()

	select {
	case <-c.Done():
		t.Fatal("context cancelled prematurely")
	default:
	}

	c.Cancel()
	c.Cancel() // idempotent

	select {
	case <-c.Done():
	default:
		t.Fatal("Done must be closed after Cancel")
	}
}

func TestNodeLogger_UsesFactory(t *testing.T) {
	calls := 0

	c := New(WithLoggerFactory(func(nodeID string) *slog.Logger {
		calls++

		return slog.Default().With("node_id", nodeID)
	}))

	require.NotNil(t, c.NodeLogger("double"))
	assert.Equal(t, 1, calls)
}

func TestChild_LoggerCarriesSingleRunID(t *testing.T) {
	var buf bytes.Buffer

	parent := New(WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	child := parent.Child(Isolated())
	grandchild := child.Child(Isolated())

	grandchild.Logger().Info("hello")

	line := buf.String()
	assert.Equal(t, 1, strings.Count(line, "run_id="))
	assert.Contains(t, line, "run_id="+grandchild.RunID())
}
