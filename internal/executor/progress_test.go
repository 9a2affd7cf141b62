package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestPodProgress_Bounds_Property 属性测试：Pod进度始终在[0,1]区间
func TestPodProgress_Bounds_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		loop := rapid.IntRange(-5, 100).Draw(t, "loop")
		maxLoops := rapid.IntRange(-5, 50).Draw(t, "maxLoops")
		completed := rapid.Bool().Draw(t, "completed")

		p := PodProgress(loop, maxLoops, completed)
		if p < 0 || p > 1.0 {
			t.Fatalf("进度越界: %f (loop=%d max=%d)", p, loop, maxLoops)
		}
		if completed && p != 1.0 {
			t.Fatalf("回放完成时进度应强制为1.0, 实际 %f", p)
		}
	})
}

// TestPodProgress_Monotonic_Property 属性测试：循环数增加时进度不减
func TestPodProgress_Monotonic_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxLoops := rapid.IntRange(1, 50).Draw(t, "maxLoops")
		loop := rapid.IntRange(0, 49).Draw(t, "loop")

		p1 := PodProgress(loop, maxLoops, false)
		p2 := PodProgress(loop+1, maxLoops, false)
		if p2 < p1 {
			t.Fatalf("进度出现回退: %f -> %f", p1, p2)
		}
	})
}

func TestPodProgress(t *testing.T) {
	assert.Equal(t, 0.5, PodProgress(5, 10, false))
	assert.Equal(t, 1.0, PodProgress(10, 10, false))
	assert.Equal(t, 1.0, PodProgress(15, 10, false))
	// 未完成且循环数为0
	assert.Equal(t, 0.0, PodProgress(0, 10, false))
	// maxLoops非法时按1处理
	assert.Equal(t, 1.0, PodProgress(1, 0, false))
	// 完成标志优先于循环数
	assert.Equal(t, 1.0, PodProgress(2, 10, true))
}

func TestMeanProgress(t *testing.T) {
	assert.Equal(t, 0.0, MeanProgress(nil))
	assert.Equal(t, 0.5, MeanProgress([]float64{0.5}))
	assert.InDelta(t, 0.5, MeanProgress([]float64{0.25, 0.75}), 1e-9)
}

func TestSequentialProgress(t *testing.T) {
	// 3步中第2步进行到一半
	assert.InDelta(t, 0.5, SequentialProgress(1, 0.5, 3), 1e-9)
	assert.Equal(t, 0.0, SequentialProgress(0, 0, 0))
	assert.Equal(t, 1.0, SequentialProgress(3, 0, 3))
	// 超出时截断
	assert.Equal(t, 1.0, SequentialProgress(3, 0.5, 3))
}

func TestWeightedProgress(t *testing.T) {
	// 两组：1.0×1代理 + 0.5×3代理 = (1.0+1.5)/4
	assert.InDelta(t, 0.625, WeightedProgress([]float64{1.0, 0.5}, []int{1, 3}), 1e-9)
	assert.Equal(t, 0.0, WeightedProgress(nil, nil))
	assert.Equal(t, 0.0, WeightedProgress([]float64{0.5}, []int{1, 2}))
	// 非法代理数按1处理
	assert.InDelta(t, 0.75, WeightedProgress([]float64{0.5, 1.0}, []int{0, 1}), 1e-9)
}

// TestWeightedProgress_Bounds_Property 属性测试：加权进度在各组进度的最小值和最大值之间
func TestWeightedProgress_Bounds_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 10).Draw(t, "n")
		progresses := make([]float64, n)
		agents := make([]int, n)
		lo, hi := 1.0, 0.0
		for i := 0; i < n; i++ {
			progresses[i] = rapid.Float64Range(0, 1).Draw(t, "p")
			agents[i] = rapid.IntRange(1, 8).Draw(t, "agents")
			if progresses[i] < lo {
				lo = progresses[i]
			}
			if progresses[i] > hi {
				hi = progresses[i]
			}
		}

		w := WeightedProgress(progresses, agents)
		if w < lo-1e-9 || w > hi+1e-9 {
			t.Fatalf("加权进度越界: %f 不在 [%f, %f]", w, lo, hi)
		}
	})
}

func TestRepeatCounter(t *testing.T) {
	assert.Equal(t, 0, RepeatCounter(nil, 5))
	// 保守取最小值
	assert.Equal(t, 2, RepeatCounter([]int{3, 2, 5}, 10))
	// 截断到预算
	assert.Equal(t, 5, RepeatCounter([]int{7, 8}, 5))
	assert.Equal(t, 0, RepeatCounter([]int{-1}, 5))
}

// TestRepeatCounter_Property 属性测试：结果不超过预算且不超过任一Pod的循环数
func TestRepeatCounter_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 8).Draw(t, "n")
		loops := make([]int, n)
		for i := 0; i < n; i++ {
			loops[i] = rapid.IntRange(0, 100).Draw(t, "loop")
		}
		budget := rapid.IntRange(1, 50).Draw(t, "budget")

		r := RepeatCounter(loops, budget)
		if r > budget {
			t.Fatalf("超出循环预算: %d > %d", r, budget)
		}
		for _, v := range loops {
			if r > v {
				t.Fatalf("超出Pod循环数: %d > %d", r, v)
			}
		}
	})
}
