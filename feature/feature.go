// 车道特征提取：将单条车道上所有车辆的遥测数据汇总为固定的8维特征向量
package feature

import (
	"fmt"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"gonum.org/v1/gonum/stat"
)

// 默认急刹车阈值（m/s²），加速度严格小于该值计为一次急刹车
const DefaultSuddenBrakeThreshold = -3.0

// Names 特征名，顺序即模型训练时的列顺序，不可更改
var Names = []string{
	"vehicle_count",
	"avg_speed",
	"speed_std",
	"avg_acceleration",
	"acc_std",
	"avg_co2",
	"avg_fuel",
	"sudden_brake_count",
}

// Vector 车道特征向量
// 说明：标准差为总体标准差；单车时标准差为0
type Vector struct {
	VehicleCount     float64
	AvgSpeed         float64
	SpeedStd         float64
	AvgAcceleration  float64
	AccStd           float64
	AvgCO2           float64
	AvgFuel          float64
	SuddenBrakeCount float64
}

// Slice 按Names的顺序输出特征值
func (v Vector) Slice() []float64 {
	return []float64{
		v.VehicleCount,
		v.AvgSpeed,
		v.SpeedStd,
		v.AvgAcceleration,
		v.AccStd,
		v.AvgCO2,
		v.AvgFuel,
		v.SuddenBrakeCount,
	}
}

// Extract 计算车道特征向量
// 功能：对车道上的车辆计算数量、速度与加速度的均值和总体标准差、CO2与油耗均值、急刹车数量
// 参数：vehicles-车道上所有车辆的遥测，suddenBrakeThreshold-急刹车阈值
// 返回：特征向量；车道为空时返回false，此时不计算任何特征
func Extract(vehicles []entity.VehicleState, suddenBrakeThreshold float64) (Vector, bool) {
	if len(vehicles) == 0 {
		return Vector{}, false
	}
	speeds := lo.Map(vehicles, func(v entity.VehicleState, _ int) float64 { return v.Speed })
	accs := lo.Map(vehicles, func(v entity.VehicleState, _ int) float64 { return v.Acceleration })
	co2 := lo.Map(vehicles, func(v entity.VehicleState, _ int) float64 { return v.CO2 })
	fuel := lo.Map(vehicles, func(v entity.VehicleState, _ int) float64 { return v.Fuel })

	var f Vector
	f.VehicleCount = float64(len(vehicles))
	f.AvgSpeed, f.SpeedStd = popMeanStdDev(speeds)
	f.AvgAcceleration, f.AccStd = popMeanStdDev(accs)
	f.AvgCO2 = stat.Mean(co2, nil)
	f.AvgFuel = stat.Mean(fuel, nil)
	f.SuddenBrakeCount = float64(lo.CountBy(accs, func(a float64) bool { return a < suddenBrakeThreshold }))
	return f, true
}

// popMeanStdDev 均值与总体标准差
// 说明：单个样本时标准差固定为0
func popMeanStdDev(x []float64) (mean, std float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.PopMeanStdDev(x, nil)
}

// LaneTelemetry 读取车道上所有车辆的遥测
// 功能：从环境中取出车道车辆ID，并逐辆读取状态
// 参数：env-仿真环境，laneID-车道ID
// 返回：车辆遥测列表与错误，环境错误直接向上传递
func LaneTelemetry(env entity.IEnvironment, laneID string) ([]entity.VehicleState, error) {
	ids, err := env.LaneVehicleIDs(laneID)
	if err != nil {
		return nil, fmt.Errorf("lane %s: %w", laneID, err)
	}
	res := make([]entity.VehicleState, 0, len(ids))
	for _, id := range ids {
		v, err := env.Vehicle(id)
		if err != nil {
			return nil, fmt.Errorf("lane %s: %w", laneID, err)
		}
		res = append(res, v)
	}
	return res, nil
}

// ExtractLane 读取并计算单条车道的特征向量
func ExtractLane(env entity.IEnvironment, laneID string, suddenBrakeThreshold float64) (Vector, bool, error) {
	vehicles, err := LaneTelemetry(env, laneID)
	if err != nil {
		return Vector{}, false, err
	}
	f, ok := Extract(vehicles, suddenBrakeThreshold)
	return f, ok, nil
}
