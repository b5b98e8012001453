package junction

import (
	"errors"
	"fmt"
	"sync"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	mapv2connect "git.fiblab.net/sim/protos/v2/go/city/map/v2/mapv2connect"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

var (
	ErrNoTrafficLight      = errors.New("no traffic light in environment")
	ErrUnknownTrafficLight = errors.New("configured traffic light does not exist")
)

// JunctionManager 受控路口管理器
// 功能：创建所有受控信号灯的控制器，每步依次决策并下发动作
type JunctionManager struct {
	mapv2connect.UnimplementedTrafficLightServiceHandler

	ctx entity.ITaskContext

	junctions []*Junction
	data      map[int32]*Junction
	lanes     []string // 所有受控车道（去重）
	links     []string // 所有受控连接对应的车道，与各信号灯相位状态串逐位对齐，不去重

	mtx      sync.RWMutex                   // 保护RPC读取的快照
	programs map[int32]*mapv2.TrafficLight // RPC输出的信控程序
}

// NewManager 创建路口管理器实例
func NewManager(ctx entity.ITaskContext) *JunctionManager {
	return &JunctionManager{
		ctx:       ctx,
		junctions: make([]*Junction, 0),
		data:      make(map[int32]*Junction),
		programs:  make(map[int32]*mapv2.TrafficLight),
	}
}

// Init 初始化受控信号灯
// 功能：确定受控信号灯列表并创建控制器
// 参数：ids-配置指定的信号灯ID（为空则取环境中的第一个信号灯），scorer-车道打分器
// 返回：错误；环境中没有信号灯或指定的信号灯不存在时返回错误，控制循环不得启动
func (m *JunctionManager) Init(ids []string, scorer ILaneScorer) error {
	all := m.ctx.Environment().TrafficLightIDs()
	if len(all) == 0 {
		return ErrNoTrafficLight
	}
	if len(ids) == 0 {
		ids = all[:1]
	}
	for _, id := range ids {
		if !lo.Contains(all, id) {
			return fmt.Errorf("%w: %s", ErrUnknownTrafficLight, id)
		}
	}
	m.junctions = make([]*Junction, 0, len(ids))
	for i, id := range lo.Uniq(ids) {
		j, err := newJunction(m.ctx, int32(i), id, scorer)
		if err != nil {
			return err
		}
		m.junctions = append(m.junctions, j)
		log.Infof("control traffic light %s: %d controlled lanes (%d unique), %d phases",
			id, len(j.controlledLanes), len(j.lanes), len(j.phases))
	}
	m.data = lo.SliceToMap(m.junctions, func(j *Junction) (int32, *Junction) {
		return j.index, j
	})
	m.lanes = lo.Uniq(lo.FlatMap(m.junctions, func(j *Junction, _ int) []string {
		return j.lanes
	}))
	m.links = lo.FlatMap(m.junctions, func(j *Junction, _ int) []string {
		return j.controlledLanes
	})
	for _, j := range m.junctions {
		m.programs[j.index] = toPb(j)
	}
	return nil
}

// Step 所有受控路口执行一步决策
// 功能：对每个路口决策并立即下发动作，结束后记录快照
// 参数：priority-本步是否检测到紧急车辆
// 返回：本步所有动作与错误；任意路口失败即返回
func (m *JunctionManager) Step(priority bool) ([]entity.Action, error) {
	actions := make([]entity.Action, 0, len(m.junctions))
	for _, j := range m.junctions {
		a, err := j.decide(priority)
		if err != nil {
			return nil, err
		}
		if err := j.apply(a); err != nil {
			return nil, fmt.Errorf("apply %v: %w", a, err)
		}
		log.Debugf("%v", a)
		actions = append(actions, a)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	for i, j := range m.junctions {
		if err := j.snapshot(actions[i]); err != nil {
			return nil, err
		}
	}
	return actions, nil
}

// Lanes 所有受控车道（去重）
func (m *JunctionManager) Lanes() []string {
	return m.lanes
}

// ControlledLanes 所有受控连接的车道，同一车道控制多个连接时重复出现
func (m *JunctionManager) ControlledLanes() []string {
	return m.links
}

// Junctions 所有受控路口
func (m *JunctionManager) Junctions() []*Junction {
	return m.junctions
}

// Get 根据序号获取路口，如果不存在则返回错误
func (m *JunctionManager) Get(index int32) (ITrafficLightGetter, error) {
	if j, ok := m.data[index]; !ok {
		return nil, fmt.Errorf("no index %d in junction data", index)
	} else {
		return j, nil
	}
}
