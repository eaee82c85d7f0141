package recon

import (
	"testing"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
)

func TestIsExpired(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	slipPolicy := config.MethodPolicy{MustExpire: true, ExpiresAfterDays: 3}
	pixPolicy := config.MethodPolicy{MustExpire: true, ExpiresInSeconds: 1800}

	tests := []struct {
		name      string
		method    string
		status    model.PaymentStatus
		policy    config.MethodPolicy
		expiresAt *time.Time
		now       time.Time
		want      bool
	}{
		{
			name:      "票据到期日加宽限之后过期",
			method:    model.MethodBankSlip,
			status:    model.StatusPending,
			policy:    slipPolicy,
			expiresAt: timePtr(base),
			// 宽限 = 3 + 5 天
			now:  base.AddDate(0, 0, 8),
			want: true,
		},
		{
			name:      "票据宽限期内不过期",
			method:    model.MethodBankSlip,
			status:    model.StatusPending,
			policy:    slipPolicy,
			expiresAt: timePtr(base),
			now:       base.AddDate(0, 0, 7).Add(23 * time.Hour),
			want:      false,
		},
		{
			name:      "即时转账超过作废秒数过期",
			method:    model.MethodInstantTransfer,
			status:    model.StatusPending,
			policy:    pixPolicy,
			expiresAt: timePtr(base),
			now:       base.Add(1800 * time.Second),
			want:      true,
		},
		{
			name:      "即时转账作废秒数内不过期",
			method:    model.MethodInstantTransfer,
			status:    model.StatusPending,
			policy:    pixPolicy,
			expiresAt: timePtr(base),
			now:       base.Add(1799 * time.Second),
			want:      false,
		},
		{
			name:      "信用卡永不过期",
			method:    model.MethodCreditCard,
			status:    model.StatusPending,
			policy:    config.MethodPolicy{MustExpire: true},
			expiresAt: timePtr(base),
			now:       base.AddDate(1, 0, 0),
			want:      false,
		},
		{
			name:      "策略关闭不过期",
			method:    model.MethodBankSlip,
			status:    model.StatusPending,
			policy:    config.MethodPolicy{MustExpire: false, ExpiresAfterDays: 3},
			expiresAt: timePtr(base),
			now:       base.AddDate(0, 0, 30),
			want:      false,
		},
		{
			name:   "未写过期锚点不过期",
			method: model.MethodBankSlip,
			status: model.StatusPending,
			policy: slipPolicy,
			now:    base.AddDate(0, 0, 30),
			want:   false,
		},
		{
			name:      "已支付的记录再旧也不过期",
			method:    model.MethodBankSlip,
			status:    model.StatusApproved,
			policy:    slipPolicy,
			expiresAt: timePtr(base),
			now:       base.AddDate(0, 0, 30),
			want:      false,
		},
		{
			name:      "终态记录不过期",
			method:    model.MethodBankSlip,
			status:    model.StatusCancelled,
			policy:    slipPolicy,
			expiresAt: timePtr(base),
			now:       base.AddDate(0, 0, 30),
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &model.PaymentRecord{
				PaymentMethod: tt.method,
				Status:        tt.status,
				ExpiresAt:     tt.expiresAt,
			}
			if got := IsExpired(record, tt.policy, tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
