package entity

import (
	"errors"
)

var (
	ErrUnknownTrafficLight = errors.New("env: unknown traffic light")
	ErrUnknownLane         = errors.New("env: unknown lane")
	ErrUnknownVehicle      = errors.New("env: unknown vehicle")
	ErrBadPhaseIndex       = errors.New("env: phase index out of range")
)

// VehicleState 车辆单步遥测数据
// 功能：描述环境在当前步给出的单辆车的状态
// 说明：单位与环境一致（速度m/s，加速度m/s²，CO2与油耗为每秒排放量），每步重新读取，不跨步保存
type VehicleState struct {
	ID           string  // 车辆ID
	TypeID       string  // 车辆类型标签
	Speed        float64 // 速度
	Acceleration float64 // 加速度
	CO2          float64 // CO2排放率
	Fuel         float64 // 油耗率
	WaitingTime  float64 // 累计等待时间
}

// PhaseDefinition 信号灯程序中的一个相位
// 功能：相位序号、信号状态串与程序默认时长
// 说明：State长度等于信号灯受控车道列表长度，第i个字符对应第i条受控车道
type PhaseDefinition struct {
	Index    int
	State    string
	Duration float64
}

// IEnvironment 仿真环境的依赖倒置
// 功能：控制器对外部微观交通仿真器的全部需求
// 说明：所有方法在控制循环所在的协程中被调用，实现无需并发安全
type IEnvironment interface {
	Step() error             // 推进一个离散步
	Time() float64           // 当前仿真时间（秒）
	MinExpectedNumber() int  // 路网中行驶中与待进入车辆数之和，为0表示运行结束
	VehicleIDs() []string    // 当前所有活动车辆
	Vehicle(id string) (VehicleState, error)
	TrafficLightIDs() []string                            // 所有信号灯
	ControlledLanes(tlID string) ([]string, error)        // 受控车道，顺序与相位状态串对齐，可能有重复
	Phases(tlID string) ([]PhaseDefinition, error)        // 信号灯程序的相位列表
	CurrentPhase(tlID string) (int, error)                // 当前相位序号
	RemainingTime(tlID string) (float64, error)           // 当前相位剩余时长
	SetPhase(tlID string, index int) error                // 切换到指定相位
	SetPhaseDuration(tlID string, duration float64) error // 设置当前相位剩余时长
	LaneVehicleIDs(laneID string) ([]string, error)       // 车道上的车辆
	LaneHaltingNumber(laneID string) (int, error)         // 车道上停止的车辆数
	Close() error
}
