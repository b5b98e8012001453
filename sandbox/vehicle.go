package sandbox

import (
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

const (
	idmTheta      = 4   // IDM速度指数
	haltingSpeed  = 0.1 // 低于该速度视为停止（m/s）
	stopLineSpace = 1.0 // 停车线前额外预留的距离（m）
	stopMargin    = 0.5 // 停车时车头不越过的停车线前距离（m）
)

// 简化排放模型参数：CO2(mg/s) = co2Idle + co2Speed*v + co2Acc*v*max(a,0)
const (
	co2Idle     = 1500.
	co2Speed    = 180.
	co2Acc      = 900.
	fuelPerCO2  = 1 / 3.17 // 每单位CO2对应的燃油质量
	minInterval = 1e-9
)

// vehicle 沙盒中的车辆
type vehicle struct {
	id     string
	typ    *VehicleType
	lane   *lane
	seq    uint64  // 进入路网的顺序
	s      float64 // 车头位置
	v      float64 // 速度
	a      float64 // 上一步实际加速度
	waitT  float64 // 累计等待时间（停止时累加，行驶时清零）
	co2    float64
	fuel   float64
	nextA  float64 // 本步计算出的加速度
	isDone bool
}

// followImpl 跟车模型核心实现
// 功能：智能驾驶模型(IDM)的跟车加速度
// 参数：selfV-本车速度，targetV-目标速度，aheadV-前车速度，distance-车距，minGap-最小车距，headway-安全车头时距
// 返回：加速度（米/秒²），限制在[最大制动, 最大加速度]内
// 说明：s_star = minGap + max(0, v*headway + v*(v-v_ahead)/(2*sqrt(a*b)))，a = maxA * (1 - (v/targetV)^4 - (s_star/distance)^2)
func (v *vehicle) followImpl(selfV, targetV, aheadV, distance, minGap, headway float64) float64 {
	t := v.typ
	var acc float64
	if distance <= 0 {
		acc = t.MaxBrakingA
	} else {
		sStar := minGap + math.Max(
			0,
			selfV*headway+selfV*(selfV-aheadV)/2/math.Sqrt(-t.UsualBrakingA*t.MaxA),
		)
		acc = t.MaxA * (1 - math.Pow(selfV/targetV, idmTheta) - math.Pow(sStar/distance, 2))
	}
	return lo.Clamp(acc, t.MaxBrakingA, t.MaxA)
}

// targetV 目标速度为车道限速与车辆最高速度的较小值
func (v *vehicle) targetV() float64 {
	return math.Min(v.typ.MaxV, v.lane.spec.MaxV)
}

// follow 跟随前车
func (v *vehicle) follow(ahead *vehicle) float64 {
	if ahead == nil {
		return v.followImpl(v.v, v.targetV(), 0, mathutil.INF, v.typ.MinGap, v.typ.Headway)
	}
	distance := ahead.s - ahead.typ.Length - v.s
	return v.followImpl(v.v, v.targetV(), ahead.v, distance, v.typ.MinGap, v.typ.Headway)
}

// stop 在停车线前刹停
// 说明：停车时以步长作为预判时间，不使用跟车的车头时距
func (v *vehicle) stop(distance, dt float64) float64 {
	return v.followImpl(v.v, v.targetV(), 0, distance, stopLineSpace, dt)
}

// stopCap 保证本步结束时车头不越过停车线前stopMargin处的最大加速度
func (v *vehicle) stopCap(distance, dt float64) float64 {
	limit := distance - stopMargin
	return math.Max(2*(limit-v.v*dt)/(dt*dt), v.typ.MaxBrakingA)
}

// canStop 以常用制动减速度能否在停车线前停下
func (v *vehicle) canStop(distance float64) bool {
	return v.v*v.v/(-2*v.typ.UsualBrakingA) <= distance
}

// plan 计算本步加速度（基于上一步的状态）
// 算法说明：
// 1. 跟车加速度
// 2. 红灯：在停车线前停车
// 3. 黄灯：能以常用制动停下则停车，否则通过
// 4. 不受信号灯约束的车辆只跟车
func (v *vehicle) plan(ahead *vehicle, signal entity.SignalState, dt float64) {
	acc := v.follow(ahead)
	distance := v.lane.spec.Length - v.s
	switch {
	case v.typ.IgnoreSignal:
	case signal.PermitsMovement():
	case signal == entity.SignalYellow || signal == entity.SignalRedYellow:
		if v.canStop(distance) {
			acc = math.Min(acc, math.Min(v.stop(distance, dt), v.stopCap(distance, dt)))
		}
	default:
		acc = math.Min(acc, math.Min(v.stop(distance, dt), v.stopCap(distance, dt)))
	}
	v.nextA = acc
}

// move 根据计划加速度更新速度、位置、等待时间与排放
func (v *vehicle) move(dt float64) {
	newV := v.v + v.nextA*dt
	if newV < 0 {
		// 本步内停下
		v.s += v.v * v.v / (-2 * v.nextA)
		newV = 0
	} else {
		v.s += (v.v + newV) / 2 * dt
	}
	v.a = (newV - v.v) / math.Max(dt, minInterval)
	v.v = newV
	if v.v < haltingSpeed {
		v.waitT += dt
	} else {
		v.waitT = 0
	}
	v.co2 = co2Idle + co2Speed*v.v + co2Acc*v.v*math.Max(v.a, 0)
	v.fuel = v.co2 * fuelPerCO2
	if v.s >= v.lane.spec.Length {
		v.isDone = true
	}
}

// state 转换为环境遥测
func (v *vehicle) state() entity.VehicleState {
	return entity.VehicleState{
		ID:           v.id,
		TypeID:       v.typ.ID,
		Speed:        v.v,
		Acceleration: v.a,
		CO2:          v.co2,
		Fuel:         v.fuel,
		WaitingTime:  v.waitT,
	}
}
