package config

// Input 指定控制器所有输入数据的配置项
// 功能：定义仿真场景与两个回归模型的文件路径
// 说明：模型文件为训练端导出的参数文件（YAML或JSON），加载后在整个运行期间只读
type Input struct {
	Scenario string  `yaml:"scenario"`       // 沙盒仿真场景文件路径
	Models   []Model `yaml:"models"`         // 集成打分使用的回归模型
	Seed     *uint64 `yaml:"seed,omitempty"` // 覆盖场景文件中的随机种子
}

// Model 单个回归模型的配置
type Model struct {
	Name   string  `yaml:"name"`             // 模型名，仅用于日志
	File   string  `yaml:"file"`             // 模型参数文件
	Weight float64 `yaml:"weight,omitempty"` // 集成权重，缺省为1
}

// ControlStep 指定模拟时间范围和间隔的配置项
// 功能：定义仿真时间控制参数
// 说明：Total为0时运行到环境中不再有待进入或行驶中的车辆为止
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数，0表示运行至结束
	Interval float64 `yaml:"interval"` // 每步的时间间隔（秒）
}

// Policy 信控决策参数
// 功能：定义TIS相位选择、绿灯时长映射与紧急车辆优先的可调参数
// 说明：绿灯时长 = GreenBase + GreenScale * utility，不少于MinGreen，MaxGreen<=0 时不设上限
type Policy struct {
	Kind                 string  `yaml:"kind"`                   // tis | max_pressure | fixed
	GreenBase            float64 `yaml:"green_base"`             // 绿灯时长基数
	GreenScale           float64 `yaml:"green_scale"`            // 绿灯时长比例系数
	MinGreen             float64 `yaml:"min_green"`              // 绿灯时长下限（必须为正，效用为负时下发的时长不会为0）
	MaxGreen             float64 `yaml:"max_green"`              // 绿灯时长上限（<=0表示不限制）
	PriorityDuration     float64 `yaml:"priority_duration"`      // 紧急车辆优先时延长的时长
	EmergencyKeyword     string  `yaml:"emergency_keyword"`      // 紧急车辆类型关键字（大小写不敏感子串匹配）
	SuddenBrakeThreshold float64 `yaml:"sudden_brake_threshold"` // 急刹车加速度阈值（m/s²）
	Parallel             bool    `yaml:"parallel,omitempty"`     // 车道打分是否并行
}

// Control 控制器控制配置
// 功能：定义控制循环的核心参数
// 说明：TrafficLights为空时只控制环境中的第一个信号灯
type Control struct {
	Step          ControlStep `yaml:"step"`
	Policy        Policy      `yaml:"policy"`
	TrafficLights []string    `yaml:"traffic_lights,omitempty"` // 受控信号灯ID列表
}

// CSVOutput CSV报告输出
type CSVOutput struct {
	File string `yaml:"file"`
}

// SQLiteOutput SQLite报告输出
type SQLiteOutput struct {
	File  string `yaml:"file"`
	Table string `yaml:"table,omitempty"`
}

// MongoOutput MongoDB报告输出
type MongoOutput struct {
	URI string `yaml:"uri"`
	DB  string `yaml:"db"`
	Col string `yaml:"col"`
}

// ChartOutput 每步指标曲线图输出
type ChartOutput struct {
	File string `yaml:"file"` // PNG文件路径
}

// NATSOutput 每步决策事件发布
type NATSOutput struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// InfluxOutput 每步指标时序写入
type InfluxOutput struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement,omitempty"`
}

// Output 输出配置，所有子项均为可选
type Output struct {
	CSV    *CSVOutput    `yaml:"csv,omitempty"`
	SQLite *SQLiteOutput `yaml:"sqlite,omitempty"`
	Mongo  *MongoOutput  `yaml:"mongo,omitempty"`
	Chart  *ChartOutput  `yaml:"chart,omitempty"`
	NATS   *NATSOutput   `yaml:"nats,omitempty"`
	Influx *InfluxOutput `yaml:"influx,omitempty"`
}

// Config YAML配置文件的根结构
// 功能：定义整个控制器的配置结构
// 说明：包含输入、控制、输出等所有配置项
type Config struct {
	Input   Input   `yaml:"input"`   // 输入
	Control Control `yaml:"control"` // 控制过程
	Output  Output  `yaml:"output"`  // 输出
}
