package xerrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWrap 测试错误包装保留错误链
func TestWrap(t *testing.T) {
	base := New("base error")
	wrapped := Wrap(base, "context")

	require.Error(t, wrapped)
	assert.Equal(t, "context: base error", wrapped.Error())
	assert.True(t, Is(wrapped, base))
}

// TestWrapNil 测试 nil 错误包装返回 nil
func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

// TestWrapf 测试格式化包装
func TestWrapf(t *testing.T) {
	base := New("boom")
	wrapped := Wrapf(base, "database[%s]", "main")

	assert.Equal(t, "database[main]: boom", wrapped.Error())
	assert.True(t, Is(wrapped, base))
}

// TestCombine 测试错误合并
func TestCombine(t *testing.T) {
	e1 := New("first")
	e2 := New("second")

	assert.NoError(t, Combine(nil, nil))
	assert.Equal(t, e1, Combine(nil, e1))

	combined := Combine(e1, nil, e2)
	require.Error(t, combined)
	assert.True(t, Is(combined, e1))
	assert.True(t, Is(combined, e2))
	assert.Contains(t, combined.Error(), "and 1 more errors")
}
