package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ModelFileParser model文件解析器
//
// 格式：每行 KEY VALUE [VALUE...]，# 开头为注释，例如
//
//	MODEL          regression
//	INTERCEPT      2.356494353223752
//	LAG_COEF       0.18898843 0.20770677 0.26106908 0.34176867
//	IMBALANCE_COEF 0
type ModelFileParser struct {
	FilePath string
}

// NewModelFileParser 创建model文件解析器
func NewModelFileParser(filePath string) *ModelFileParser {
	return &ModelFileParser{
		FilePath: filePath,
	}
}

// Parse 解析 model 文件
func (p *ModelFileParser) Parse() (map[string]interface{}, error) {
	file, err := os.Open(p.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open model file: %w", err)
	}
	defer file.Close()

	params := make(map[string]interface{})
	scanner := bufio.NewScanner(file)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// 跳过空行和注释
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}

		key := parts[0]
		if len(parts) == 2 {
			params[key] = parseValue(parts[1])
			continue
		}
		list := make([]interface{}, 0, len(parts)-1)
		for _, v := range parts[1:] {
			list = append(list, parseValue(v))
		}
		params[key] = list
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan model file: %w", err)
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("no parameters found in model file")
	}

	return params, nil
}

// parseValue 解析值类型
func parseValue(s string) interface{} {
	// 尝试解析为整数
	if intVal, err := strconv.Atoi(s); err == nil {
		return intVal
	}

	// 尝试解析为浮点数
	if floatVal, err := strconv.ParseFloat(s, 64); err == nil {
		return floatVal
	}

	// 默认字符串
	return s
}

// modelKeys model 文件键 -> 策略参数
var modelKeys = map[string]string{
	"MODEL":          "model",
	"FAIR_PRICE":     "fair_price",
	"INTERCEPT":      "intercept",
	"LAG_COEF":       "lag_coefs",
	"IMBALANCE_COEF": "imbalance_coef",
	"THRESHOLD":      "threshold",
	"RESERVE":        "reserve",
}

// ConvertModelToStrategyParams 转换model参数到策略参数
func ConvertModelToStrategyParams(modelParams map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{})
	for key, name := range modelKeys {
		val, ok := modelParams[key]
		if !ok {
			continue
		}
		// 单个系数也按列表处理
		if name == "lag_coefs" {
			if _, isList := val.([]interface{}); !isList {
				val = []interface{}{val}
			}
		}
		params[name] = val
	}
	return params
}

// ResolveParameters returns the item's parameters overlaid with its model file, if any
func (s StrategyItemConfig) ResolveParameters() (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(s.Parameters))
	for k, v := range s.Parameters {
		out[k] = v
	}
	if s.ModelFile == "" {
		return out, nil
	}
	raw, err := NewModelFileParser(s.ModelFile).Parse()
	if err != nil {
		return nil, fmt.Errorf("strategy %s: %w", s.ID, err)
	}
	for k, v := range ConvertModelToStrategyParams(raw) {
		out[k] = v
	}
	return out, nil
}
