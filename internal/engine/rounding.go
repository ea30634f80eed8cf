package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// adjustValueToStep 将数值向下取整到步长精度，通过字符串操作确保精度，
// 避免浮点数计算误差。对已经符合精度的值重复调用不会改变结果。
func adjustValueToStep(value float64, step string) float64 {
	if !strings.Contains(step, ".") {
		// 步长为 "1", "10" 等整数时直接取整
		return math.Floor(value)
	}
	decimalPlaces := len(step) - strings.Index(step, ".") - 1

	// 乘以因子取整再除回去，是处理浮点数精度的常用方法
	factor := math.Pow(10, float64(decimalPlaces))
	adjustedValue := math.Floor(value*factor) / factor

	finalValue, _ := strconv.ParseFloat(fmt.Sprintf("%.*f", decimalPlaces, adjustedValue), 64)
	return finalValue
}

// parseStep 把交易所规则中的步长字符串解析为数值
func parseStep(step string) (float64, error) {
	return strconv.ParseFloat(step, 64)
}
