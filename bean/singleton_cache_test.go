package bean

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestSingletonCacheStates(t *testing.T) {
	c := NewSingletonCache()
	raw := &plainBean{}
	proxy := &plainBean{Name: "proxy"}

	assert.Equal(t, StateAbsent, c.State("a"))

	require.NoError(t, c.ExposeEarly("a", raw))
	assert.Equal(t, StateEarlyExposed, c.State("a"))
	_, ok := c.Get("a")
	assert.False(t, ok, "early entries are not returned by Get")
	assert.Error(t, c.ExposeEarly("a", raw))

	// 最终实例可以与早期引用不同
	require.NoError(t, c.Finalize("a", proxy, nil))
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Same(t, proxy, got)
	assert.Error(t, c.Finalize("a", proxy, nil))
}

// 测试 DestroyAll：按登记顺序、尽力而为、收集错误
func TestSingletonCacheDestroyAll(t *testing.T) {
	c := NewSingletonCache()
	var calls []string
	record := func(name string, err error) func() error {
		return func() error {
			calls = append(calls, name)
			return err
		}
	}

	require.NoError(t, c.Finalize("first", 1, record("first", errors.New("boom"))))
	require.NoError(t, c.Finalize("second", 2, nil))
	require.NoError(t, c.Finalize("third", 3, func() error { panic("bad") }))
	require.NoError(t, c.Finalize("fourth", 4, record("fourth", nil)))

	err := c.DestroyAll()
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
	assert.Equal(t, []string{"first", "fourth"}, calls)

	for _, name := range []string{"first", "second", "third", "fourth"} {
		assert.Equal(t, StateDestroyed, c.State(name), name)
	}

	_, _, err = c.acquire("first", newCreation())
	assert.ErrorIs(t, err, ErrBeanDestroyed)
}

func TestSingletonCacheRemove(t *testing.T) {
	c := NewSingletonCache()
	destroyed := 0
	require.NoError(t, c.Finalize("a", 1, func() error { destroyed++; return nil }))
	require.NoError(t, c.Finalize("b", 2, nil))

	require.NoError(t, c.Remove("a"))
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, StateAbsent, c.State("a"))
	assert.Equal(t, []string{"b"}, c.Names())
}

func TestSingletonCacheAcquireReentry(t *testing.T) {
	c := NewSingletonCache()
	run := newCreation()
	run.enter("a")

	_, result, err := c.acquire("a", run)
	require.NoError(t, err)
	assert.Equal(t, acquireOwned, result)

	// 同一创建过程在暴露前重入：循环依赖
	_, _, err = c.acquire("a", run)
	var circ *CircularConstructorDependencyError
	require.ErrorAs(t, err, &circ)
	assert.Equal(t, []string{"a", "a"}, circ.Chain)

	// 暴露后重入：返回早期引用
	raw := &plainBean{}
	require.NoError(t, c.ExposeEarly("a", raw))
	inst, result, err := c.acquire("a", run)
	require.NoError(t, err)
	assert.Equal(t, acquireEarly, result)
	assert.Same(t, raw, inst)

	// 失败释放后回到 ABSENT
	c.release("a", run)
	assert.Equal(t, StateAbsent, c.State("a"))
}
