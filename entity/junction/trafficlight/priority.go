package trafficlight

import (
	"fmt"
	"strings"

	"github.com/tsinghua-fib-lab/agentsociety-signal-tis/entity"
)

// IsEmergency 车辆类型标签是否匹配紧急车辆关键字（大小写不敏感的子串匹配）
func IsEmergency(typeID, keyword string) bool {
	return strings.Contains(strings.ToLower(typeID), strings.ToLower(keyword))
}

// DetectPriority 检测路网中是否存在紧急车辆
// 功能：遍历路网中所有活动车辆（不限于受控车道），找到第一辆紧急车辆即返回
// 参数：env-仿真环境，keyword-紧急车辆类型关键字
// 返回：是否存在紧急车辆与错误
func DetectPriority(env entity.IEnvironment, keyword string) (bool, error) {
	for _, id := range env.VehicleIDs() {
		v, err := env.Vehicle(id)
		if err != nil {
			return false, fmt.Errorf("priority: %w", err)
		}
		if IsEmergency(v.TypeID, keyword) {
			log.Debugf("emergency vehicle %s (%s) detected", v.ID, v.TypeID)
			return true, nil
		}
	}
	return false, nil
}
