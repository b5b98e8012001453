// 随机数引擎，包装了golang.org/x/exp/rand，为沙盒仿真的车辆生成提供可复现的随机数
package randengine

import (
	"flag"
	"fmt"

	"golang.org/x/exp/rand"
)

var (
	seedOffset = flag.Uint64("rand.seed_offset", 0, "seed offset") // 种子偏移量，用于调整随机数生成
)

// Engine 随机数引擎
// 功能：相同种子下产生相同的随机序列
// 说明：非线程安全，只在沙盒仿真的单个协程中使用
type Engine struct {
	*rand.Rand // 底层随机数生成器
}

// New 创建随机数引擎
// 参数：seed-随机数种子
// 说明：种子偏移量允许在不修改场景文件的情况下调整随机数序列
func New(seed uint64) *Engine {
	return &Engine{Rand: rand.New(rand.NewSource(seed + *seedOffset))}
}

// DiscreteDistribution 按给定权重生成随机下标
// 功能：根据权重数组生成离散分布的随机数
// 参数：weight-权重数组，每个元素表示对应索引的概率权重
// 返回：随机生成的索引值（0到len(weight)-1）
// 说明：使用累积分布函数的方法实现离散概率分布
func (e *Engine) DiscreteDistribution(weight []float64) (int32, error) {
	random := .0
	for _, w := range weight {
		random += w
	}
	random *= e.Float64()
	sum := 0.
	for i, w := range weight {
		sum += w
		if sum > random {
			return int32(i), nil
		}
	}
	return -1, fmt.Errorf("randengine: DiscreteDistribution: sum: %f random: %f", sum, random)
}

// PTrue 以指定概率返回true
func (e *Engine) PTrue(p float64) bool {
	return e.Float64() < p
}
