package junction

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"git.fiblab.net/sim/syncer/v3"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
	"google.golang.org/protobuf/proto"
)

// toPb 将受控信号灯的程序转换为protobuf
// 说明：解析失败的相位在初始化时已经被拒绝，这里只做格式转换
func toPb(j *Junction) *mapv2.TrafficLight {
	return &mapv2.TrafficLight{
		JunctionId: j.index,
		Phases: lo.Map(j.defs, func(d entity.PhaseDefinition, i int) *mapv2.Phase {
			return &mapv2.Phase{
				Duration: d.Duration,
				States: lo.Map(j.phases[i].States, func(s entity.SignalState, _ int) mapv2.LightState {
					return s.ToPb()
				}),
			}
		}),
	}
}

// Register 将路口管理器注册到sidecar
// 说明：只提供只读的信号灯查询，修改类接口由控制器独占，返回Unimplemented
func (m *JunctionManager) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		mapv2connect.TrafficLightServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return mapv2connect.NewTrafficLightServiceHandler(m, opts...)
		},
	)
}

// GetTrafficLight RPC接口：获取指定受控信号灯的状态
// 功能：返回信控程序、当前相位与剩余时间（上一步结束时的快照）
// 参数：ctx-上下文，in-请求，JunctionId为受控信号灯的序号
// 返回：信号灯状态响应
func (m *JunctionManager) GetTrafficLight(
	ctx context.Context, in *connect.Request[mapv2.GetTrafficLightRequest],
) (*connect.Response[mapv2.GetTrafficLightResponse], error) {
	req := in.Msg
	j, ok := m.data[req.JunctionId]
	if !ok {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("junction id does not exist"))
	}
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return connect.NewResponse(&mapv2.GetTrafficLightResponse{
		TrafficLight:  proto.Clone(m.programs[req.JunctionId]).(*mapv2.TrafficLight),
		PhaseIndex:    j.phase,
		TimeRemaining: j.remainingT,
	}), nil
}
