package service

import (
	"testing"

	"payrecon/internal/recon"
)

func TestResolveEventRule(t *testing.T) {
	tests := []struct {
		name         string
		event        string
		wantName     string
		wantKnown    bool
		wantIgnore   bool
		wantForce    recon.RemoteStatus
		wantPaidLike bool
	}{
		{
			name:         "已支付事件",
			event:        "OrderApproved",
			wantName:     "OrderApproved",
			wantKnown:    true,
			wantPaidLike: true,
		},
		{
			name:         "已入账事件",
			event:        "OrderIntegrated",
			wantName:     "OrderIntegrated",
			wantKnown:    true,
			wantPaidLike: true,
		},
		{
			name:      "拒绝授权强制按取消处理",
			event:     "PaymentNotAuthorized",
			wantName:  "PaymentNotAuthorized",
			wantKnown: true,
			wantForce: recon.RemoteCancelled,
		},
		{
			name:      "延迟拒绝授权同样强制取消",
			event:     "PaymentNotAuthorizedWithDelay",
			wantName:  "PaymentNotAuthorizedWithDelay",
			wantKnown: true,
			wantForce: recon.RemoteCancelled,
		},
		{
			name:       "票据生成通知确认但忽略",
			event:      "OrderBilletCreated",
			wantName:   "OrderBilletCreated",
			wantKnown:  true,
			wantIgnore: true,
		},
		{
			name:      "票据逾期走正常判定链",
			event:     "OrderBilletOverdue",
			wantName:  "OrderBilletOverdue",
			wantKnown: true,
		},
		{
			name:         "竖线后缀只取第一段",
			event:        "OrderPaid|boleto",
			wantName:     "OrderPaid",
			wantKnown:    true,
			wantPaidLike: true,
		},
		{
			name:      "首尾空白归一化",
			event:     "  OrderRefund  ",
			wantName:  "OrderRefund",
			wantKnown: true,
		},
		{
			name:      "未识别的事件",
			event:     "SomethingNew",
			wantName:  "SomethingNew",
			wantKnown: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, rule, known := resolveEventRule(tt.event)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if known != tt.wantKnown {
				t.Fatalf("known = %v, want %v", known, tt.wantKnown)
			}
			if !known {
				return
			}
			if rule.ignore != tt.wantIgnore {
				t.Errorf("ignore = %v, want %v", rule.ignore, tt.wantIgnore)
			}
			if rule.forceStatus != tt.wantForce {
				t.Errorf("forceStatus = %v, want %v", rule.forceStatus, tt.wantForce)
			}
			if rule.paidImplying != tt.wantPaidLike {
				t.Errorf("paidImplying = %v, want %v", rule.paidImplying, tt.wantPaidLike)
			}
		})
	}
}
