package recon

import (
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
)

// bankSlipSlackDays 银行票据在到期日之后的固定清算时滞
// 银行通道回传滞后，到期不等于作废，要再宽限几天
const bankSlipSlackDays = 5

// IsExpired 过期判定，纯函数
//
// 只有同时满足以下条件才算过期，任何一条不满足都返回 false，从不报错：
//  1. 当前是等待态（已支付/终态的记录再旧也不算过期）
//  2. 支付方式不是信用卡（信用卡同步结算）
//  3. 该方式的 must_expire 策略开启
//  4. expires_at 已写入，且 now >= expires_at + 宽限间隔
//
// 宽限间隔按方式取：票据按天（配置天数+固定时滞），即时转账按秒。
func IsExpired(record *model.PaymentRecord, policy config.MethodPolicy, now time.Time) bool {
	if !record.Status.IsWaiting() {
		return false
	}

	if record.PaymentMethod == model.MethodCreditCard {
		return false
	}

	if !policy.MustExpire || record.ExpiresAt == nil {
		return false
	}

	var grace time.Duration
	switch record.PaymentMethod {
	case model.MethodBankSlip:
		days := policy.ExpiresAfterDays + bankSlipSlackDays
		grace = time.Duration(days) * 24 * time.Hour
	case model.MethodInstantTransfer:
		grace = time.Duration(policy.ExpiresInSeconds) * time.Second
	default:
		return false
	}

	return !now.Before(record.ExpiresAt.Add(grace))
}
