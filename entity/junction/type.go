package junction

import (
	"github.com/sirupsen/logrus"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity/junction/trafficlight"
)

var log = logrus.WithField("module", "junction")

// 依赖倒置，表达junction对车道打分实现的接口需求
type ILaneScorer = trafficlight.ILaneScorer

// 控制器需要读取的信号灯运行时状态
type ITrafficLightGetter interface {
	ID() string
	Phase() int32              // 当前相位
	RemainingTime() float64    // 当前相位剩余时长
	LastAction() entity.Action // 上一步下发的动作
}
