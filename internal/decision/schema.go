package decision

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// 模型响应的结构校验：字段缺失或类型不对直接判为 Malformed，
// 不做任何猜测性修补。数字容忍字符串形式，解析阶段统一转换。

const buySchemaJSON = `{
	"type": "object",
	"required": ["coin", "confidence"],
	"properties": {
		"coin": {"type": "string", "minLength": 1},
		"confidence": {"type": ["integer", "number", "string"]},
		"risk_level": {"type": "string"},
		"reason": {"type": "string"},
		"target_profit": {"type": ["number", "string"]},
		"stop_loss": {"type": ["number", "string"]}
	}
}`

const swapSchemaJSON = `{
	"type": "object",
	"required": ["should_swap"],
	"properties": {
		"should_swap": {"type": ["boolean", "string"]},
		"sell_coin": {"type": "string"},
		"buy_coin": {"type": "string"},
		"confidence": {"type": ["integer", "number", "string"]},
		"reason": {"type": "string"}
	}
}`

const allocationSchemaJSON = `{
	"type": "object",
	"required": ["amount"],
	"properties": {
		"amount": {"type": ["number", "string"]},
		"reason": {"type": "string"}
	}
}`

var (
	buySchema        = mustCompile("buy.json", buySchemaJSON)
	swapSchema       = mustCompile("swap.json", swapSchemaJSON)
	allocationSchema = mustCompile("allocation.json", allocationSchemaJSON)
)

func mustCompile(name, raw string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(raw)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(name)
}
