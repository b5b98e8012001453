package sandbox

import (
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/utils/container"
)

const departEpsilon = 1e-6

// pendingVehicle 等待进入路网的车辆
type pendingVehicle struct {
	id     string
	typ    *VehicleType
	depart float64
}

// lane 沙盒中的单车道
// 功能：维护车道上车辆的前后顺序，以及等待从车道起点进入的车辆队列
type lane struct {
	spec     LaneSpec
	vehicles []*vehicle                                // 车辆列表，按位置从前到后
	pending  *container.PriorityQueue[*pendingVehicle] // 按出发时间排序
}

func newLane(spec LaneSpec) *lane {
	return &lane{
		spec:    spec,
		pending: container.NewPriorityQueue[*pendingVehicle](),
	}
}

// update 更新车道上所有车辆
// 算法说明：
// 1. 基于上一步状态为每辆车计算加速度（前车取自同一快照）
// 2. 统一移动
// 3. 移除越过停车线的车辆
// 返回：离开路网的车辆
func (l *lane) update(signal entity.SignalState, dt float64) []*vehicle {
	for i, v := range l.vehicles {
		var ahead *vehicle
		if i > 0 {
			ahead = l.vehicles[i-1]
		}
		v.plan(ahead, signal, dt)
	}
	for _, v := range l.vehicles {
		v.move(dt)
	}
	n := 0
	for n < len(l.vehicles) && l.vehicles[n].isDone {
		n++
	}
	left := l.vehicles[:n]
	l.vehicles = l.vehicles[n:]
	return left
}

// hasRoom 车道起点是否有足够空间放入新车
func (l *lane) hasRoom(typ *VehicleType) bool {
	if len(l.vehicles) == 0 {
		return true
	}
	last := l.vehicles[len(l.vehicles)-1]
	return last.s-last.typ.Length >= typ.MinGap
}

// insert 放入出发时间已到且有空间的车辆
// 说明：队首车辆无法进入时，后续车辆同样等待
func (l *lane) insert(t float64, nextSeq func() uint64) []*vehicle {
	var inserted []*vehicle
	for l.pending.Len() > 0 {
		p, depart := l.pending.First()
		if depart > t+departEpsilon || !l.hasRoom(p.typ) {
			break
		}
		l.pending.HeapPop()
		v := &vehicle{id: p.id, typ: p.typ, lane: l, seq: nextSeq()}
		v.co2 = co2Idle
		v.fuel = co2Idle * fuelPerCO2
		l.vehicles = append(l.vehicles, v)
		inserted = append(inserted, v)
	}
	return inserted
}

// haltingNumber 停止的车辆数
func (l *lane) haltingNumber() int {
	n := 0
	for _, v := range l.vehicles {
		if v.v < haltingSpeed {
			n++
		}
	}
	return n
}
