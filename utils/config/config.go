package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v2"
)

// 策略类型
const (
	PolicyTIS         = "tis"
	PolicyMaxPressure = "max_pressure"
	PolicyFixed       = "fixed"
)

var (
	ErrInvalidConfig = errors.New("config: invalid")
)

// Default 参考实现的默认配置
// 功能：返回与参考行为一致的默认参数（绿灯15+30*utility且不少于5秒，紧急优先40秒，急刹阈值-3m/s²）
func Default() Config {
	return Config{
		Control: Control{
			Step: ControlStep{Interval: 1},
			Policy: Policy{
				Kind:                 PolicyTIS,
				GreenBase:            15,
				GreenScale:           30,
				MinGreen:             5,
				PriorityDuration:     40,
				EmergencyKeyword:     "emergency",
				SuddenBrakeThreshold: -3,
			},
		},
	}
}

// Parse 解析YAML配置
// 功能：在默认配置之上严格解析YAML数据并校验
// 参数：data-YAML文件内容
// 返回：配置对象与错误
// 说明：未知字段会导致解析失败（UnmarshalStrict）
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate 校验配置
func (c Config) Validate() error {
	p := c.Control.Policy
	switch p.Kind {
	case PolicyTIS:
		if len(c.Input.Models) == 0 {
			return fmt.Errorf("%w: policy %s requires input.models", ErrInvalidConfig, p.Kind)
		}
		for i, m := range c.Input.Models {
			if m.File == "" {
				return fmt.Errorf("%w: input.models[%d].file is empty", ErrInvalidConfig, i)
			}
			if m.Weight < 0 {
				return fmt.Errorf("%w: input.models[%d].weight is negative", ErrInvalidConfig, i)
			}
		}
	case PolicyMaxPressure, PolicyFixed:
	default:
		return fmt.Errorf("%w: unknown policy %q", ErrInvalidConfig, p.Kind)
	}
	if c.Control.Step.Interval <= 0 {
		return fmt.Errorf("%w: control.step.interval must be positive", ErrInvalidConfig)
	}
	if c.Control.Step.Total < 0 {
		return fmt.Errorf("%w: control.step.total must not be negative", ErrInvalidConfig)
	}
	if p.MinGreen <= 0 {
		return fmt.Errorf("%w: min_green must be positive", ErrInvalidConfig)
	}
	if p.MaxGreen > 0 && p.MaxGreen < p.MinGreen {
		return fmt.Errorf("%w: max_green %v < min_green %v", ErrInvalidConfig, p.MaxGreen, p.MinGreen)
	}
	if p.PriorityDuration <= 0 {
		return fmt.Errorf("%w: priority_duration must be positive", ErrInvalidConfig)
	}
	if p.EmergencyKeyword == "" {
		return fmt.Errorf("%w: emergency_keyword is empty", ErrInvalidConfig)
	}
	return nil
}

// RuntimeConfig 运行时配置
// 功能：存储控制器运行时使用的配置信息
type RuntimeConfig struct {
	All Config  // 全部配置
	C   Control // 控制配置
}

// NewRuntimeConfig 根据配置初始化运行时配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	return &RuntimeConfig{
		All: config,
		C:   config.Control,
	}
}
