package engine

import (
	"github.com/google/uuid"
	"github.com/jxskiss/base62"
)

// clientOrderIDPrefix 用于区分本程序挂出的订单和账户上其他来源的订单
const clientOrderIDPrefix = "gm"

// newClientOrderID 生成一个全局唯一的客户端订单ID。
// UUID 经 base62 编码后约22个字符，加前缀后远低于交易所36字符的上限。
func newClientOrderID() string {
	u := uuid.New()
	return clientOrderIDPrefix + base62.EncodeToString(u[:])
}
