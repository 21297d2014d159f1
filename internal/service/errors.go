package service

import (
	"errors"
)

// 业务错误集中声明，handler 层据此映射响应码
var (
	ErrInvalidAmount       = errors.New("金额必须大于0")
	ErrInvalidCreditKind   = errors.New("额度类型不合法")
	ErrInvalidExpiry       = errors.New("付费额度不允许设置过期时间")
	ErrInsufficientCredit  = errors.New("可用额度不足")
	ErrDuplicatePurchase   = errors.New("该内容已购买，请勿重复购买")
	ErrAmountMismatch      = errors.New("支付金额与订单金额不一致")
	ErrGatewayAmountDiff   = errors.New("网关扣款金额与订单金额不一致")
	ErrPaymentStateInvalid = errors.New("支付单状态不允许该操作")
	ErrRefundNotAllowed    = errors.New("支付单状态不允许退款")
	ErrCreditAlreadyUsed   = errors.New("额度已部分消耗，不支持退款")
	ErrRefundWindowClosed  = errors.New("已超过退款期限，请走人工流程")
	ErrNotCreatorOwner     = errors.New("无权操作该创作者账户")
	ErrGatewayFailed       = errors.New("支付网关调用失败")
)
