package executor

import (
	"testing"

	"robosim/backend/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterConflict(t *testing.T) {
	reg := NewRunRegistry()

	ctx, run, err := reg.Register(1, 100, "session-a")
	require.NoError(t, err)
	require.NotNil(t, ctx)
	assert.Equal(t, uint(1), run.SimulationID)
	assert.Equal(t, uint(100), run.ExecutionID)
	assert.True(t, reg.IsRunning(1))
	assert.Equal(t, 1, reg.Count())

	// 同一仿真重复注册冲突
	_, _, err = reg.Register(1, 101, "session-b")
	assert.Equal(t, types.ErrRunConflict, err)

	// 其他仿真不受影响
	_, _, err = reg.Register(2, 102, "session-c")
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Count())
}

func TestRegistryRequestStop(t *testing.T) {
	reg := NewRunRegistry()

	// 未运行时停止
	_, err := reg.RequestStop(1)
	assert.Equal(t, types.ErrNotRunning, err)

	ctx, _, err := reg.Register(1, 100, "session-a")
	require.NoError(t, err)

	run, err := reg.RequestStop(1)
	require.NoError(t, err)
	assert.NotNil(t, run)

	// 停止请求取消执行context
	select {
	case <-ctx.Done():
	default:
		t.Fatal("停止后context应已取消")
	}

	// 重复停止
	_, err = reg.RequestStop(1)
	assert.Equal(t, types.ErrStopping, err)
}

func TestRegistryFinish(t *testing.T) {
	reg := NewRunRegistry()

	_, run, err := reg.Register(1, 100, "session-a")
	require.NoError(t, err)

	reg.finish(1)
	assert.False(t, reg.IsRunning(1))
	assert.Equal(t, 0, reg.Count())

	// 排空后done通道关闭
	select {
	case <-run.Done():
	default:
		t.Fatal("finish后done通道应已关闭")
	}

	// 注销后可重新注册
	_, _, err = reg.Register(1, 101, "session-b")
	assert.NoError(t, err)

	// 对不存在的仿真调用finish不应panic
	reg.finish(99)
}
