package executor

// PodProgress 单个Pod的回放进度
// 以循环次数估算：current/max并截断到1.0，回放完成强制为1.0
func PodProgress(currentLoop, maxLoops int, completed bool) float64 {
	if completed {
		return 1.0
	}
	if maxLoops < 1 {
		maxLoops = 1
	}
	p := float64(currentLoop) / float64(maxLoops)
	if p > 1.0 {
		return 1.0
	}
	if p < 0 {
		return 0
	}
	return p
}

// MeanProgress 代理进度的算术平均
func MeanProgress(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SequentialProgress 顺序模式整体进度
func SequentialProgress(completedStages int, currentStageProgress float64, totalStages int) float64 {
	if totalStages <= 0 {
		return 0
	}
	p := (float64(completedStages) + currentStageProgress) / float64(totalStages)
	if p > 1.0 {
		return 1.0
	}
	return p
}

// WeightedProgress 并行模式整体进度，按各组代理数加权
func WeightedProgress(progresses []float64, agentCounts []int) float64 {
	if len(progresses) == 0 || len(progresses) != len(agentCounts) {
		return 0
	}
	totalAgents := 0
	weighted := 0.0
	for i, p := range progresses {
		n := agentCounts[i]
		if n < 1 {
			n = 1
		}
		totalAgents += n
		weighted += p * float64(n)
	}
	if totalAgents == 0 {
		return 0
	}
	return weighted / float64(totalAgents)
}

// RepeatCounter 单元当前循环数
// 取所有Pod的最小值(保守估计)，并截断到循环预算
func RepeatCounter(loops []int, budget int) int {
	if len(loops) == 0 {
		return 0
	}
	min := loops[0]
	for _, v := range loops[1:] {
		if v < min {
			min = v
		}
	}
	if budget > 0 && min > budget {
		return budget
	}
	if min < 0 {
		return 0
	}
	return min
}
