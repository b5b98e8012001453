package clock

import (
	"context"
	"net/http"
	"sync"

	"connectrpc.com/connect"
	clockv1 "git.fiblab.net/sim/protos/v2/go/city/clock/v1"
	"git.fiblab.net/sim/protos/v2/go/city/clock/v1/clockv1connect"
	"git.fiblab.net/sim/syncer/v3"
)

// Service 时钟的RPC服务
// 功能：向外部提供当前仿真时间，时间在每步结束时由控制循环写入快照
// 说明：RPC在sidecar协程中被调用，与控制循环并发，因此只读快照
type Service struct {
	clockv1connect.UnimplementedClockServiceHandler

	mtx sync.RWMutex
	t   float64
}

// NewService 创建时钟RPC服务
func NewService() *Service {
	return &Service{}
}

// Snapshot 写入时钟快照
func (s *Service) Snapshot(c *Clock) {
	s.mtx.Lock()
	s.t = c.T
	s.mtx.Unlock()
}

// Register 将ClockService注册到sidecar
func (s *Service) Register(sidecar *syncer.Sidecar) {
	sidecar.Register(
		clockv1connect.ClockServiceName,
		func(opts ...connect.HandlerOption) (pattern string, handler http.Handler) {
			return clockv1connect.NewClockServiceHandler(s, opts...)
		},
	)
}

// Now 获取当前仿真时间
func (s *Service) Now(ctx context.Context, in *connect.Request[clockv1.NowRequest]) (*connect.Response[clockv1.NowResponse], error) {
	s.mtx.RLock()
	defer s.mtx.RUnlock()
	return connect.NewResponse(&clockv1.NowResponse{
		T: s.t,
	}), nil
}
