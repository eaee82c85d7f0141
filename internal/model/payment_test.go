package model

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		name string
		from PaymentStatus
		to   PaymentStatus
		want bool
	}{
		{"已创建到待支付", StatusCreated, StatusPending, true},
		{"已创建到已取消", StatusCreated, StatusCancelled, true},
		{"已创建到已过期", StatusCreated, StatusExpired, true},
		{"已创建不能直接到已支付", StatusCreated, StatusApproved, false},
		{"待支付到已支付", StatusPending, StatusApproved, true},
		{"待支付直接到已入账", StatusPending, StatusIntegrated, true},
		{"待支付到审核中", StatusPending, StatusInAnalysis, true},
		{"待支付到拒付处理中", StatusPending, StatusChargebackWaiting, true},
		{"审核中只能到已支付", StatusInAnalysis, StatusApproved, true},
		{"审核中不能到已取消", StatusInAnalysis, StatusCancelled, false},
		{"等待清算到已入账", StatusPendingIntegration, StatusIntegrated, true},
		{"已支付到已退款", StatusApproved, StatusRefunded, true},
		{"已支付到拒付处理中", StatusApproved, StatusChargebackWaiting, true},
		{"已支付不能回到待支付", StatusApproved, StatusPending, false},
		{"已入账到已退款", StatusIntegrated, StatusRefunded, true},
		{"已入账不能被取消", StatusIntegrated, StatusCancelled, false},
		{"拒付处理中到败诉", StatusChargebackWaiting, StatusChargebackLost, true},
		{"拒付处理中到胜诉", StatusChargebackWaiting, StatusChargebackWon, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransitionTo(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransitionTo(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminalStatusHasNoOutgoingEdges(t *testing.T) {
	terminals := []PaymentStatus{
		StatusCancelled, StatusRefunded, StatusExpired,
		StatusChargebackLost, StatusChargebackWon,
	}

	all := []PaymentStatus{
		StatusCreated, StatusPending, StatusApproved, StatusCancelled,
		StatusInAnalysis, StatusIntegrated, StatusPendingIntegration,
		StatusRefunded, StatusChargebackLost, StatusChargebackWaiting,
		StatusChargebackWon, StatusExpired,
	}

	for _, from := range terminals {
		if !from.IsTerminal() {
			t.Errorf("%s 应当是终态", from)
		}
		for _, to := range all {
			if CanTransitionTo(from, to) {
				t.Errorf("终态 %s 不应有出边，却允许迁移到 %s", from, to)
			}
		}
	}
}

func TestChangeStatusIllegalTransition(t *testing.T) {
	record := &PaymentRecord{Status: StatusIntegrated}

	err := record.ChangeStatus(StatusCancelled)
	if err == nil {
		t.Fatal("已入账到已取消应当返回错误")
	}

	var illegal *IllegalTransitionError
	if !errors.As(err, &illegal) {
		t.Fatalf("错误类型应为 IllegalTransitionError, got %T", err)
	}
	if illegal.From != StatusIntegrated || illegal.To != StatusCancelled {
		t.Errorf("错误内容不符: %v", illegal)
	}

	// 记录保持原状
	if record.Status != StatusIntegrated {
		t.Errorf("非法迁移后状态不应变化, got %s", record.Status)
	}
}

func TestMarkAsPaidKeepsOriginalPaidAt(t *testing.T) {
	first := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)

	record := &PaymentRecord{Status: StatusPending}
	if err := record.MarkAsPaid(10000, first); err != nil {
		t.Fatalf("MarkAsPaid: %v", err)
	}
	if record.PaidAt == nil || !record.PaidAt.Equal(first) {
		t.Fatalf("paid_at 应为首次支付时间, got %v", record.PaidAt)
	}

	// 已支付没有到已入账的出边，重复入账通知被迁移表拒绝且记录不动
	if err := record.MarkAsIntegrated(10000, later, later); err == nil {
		t.Fatal("已支付到已入账应当被迁移表拒绝")
	}
	if record.Status != StatusApproved || !record.PaidAt.Equal(first) {
		t.Errorf("被拒绝的迁移不应动记录: status=%s, paid_at=%v", record.Status, record.PaidAt)
	}

	// 合法路径：等待支付直接入账，此前已写入的 paid_at 不被覆盖
	record = &PaymentRecord{Status: StatusPending, PaidAt: &first}
	if err := record.MarkAsIntegrated(10000, later, later); err != nil {
		t.Fatalf("MarkAsIntegrated: %v", err)
	}
	if !record.PaidAt.Equal(first) {
		t.Errorf("paid_at 一旦写入不应被覆盖, got %v", record.PaidAt)
	}
	if record.IntegratedAt == nil || !record.IntegratedAt.Equal(later) {
		t.Errorf("integrated_at 应为入账时间, got %v", record.IntegratedAt)
	}
}

func TestMarkAsIntegratedBackfillsPaidAt(t *testing.T) {
	at := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)

	// 待支付直接收到入账（跳过了已支付通知）
	record := &PaymentRecord{Status: StatusPending}
	if err := record.MarkAsIntegrated(5000, at, at); err != nil {
		t.Fatalf("MarkAsIntegrated: %v", err)
	}
	if record.Status != StatusIntegrated {
		t.Errorf("status = %s, want INTEGRATED", record.Status)
	}
	if record.PaidAt == nil || !record.PaidAt.Equal(at) {
		t.Errorf("paid_at 应被补齐, got %v", record.PaidAt)
	}
}

func TestStatusClassification(t *testing.T) {
	waiting := []PaymentStatus{
		StatusCreated, StatusPending, StatusInAnalysis,
		StatusPendingIntegration, StatusChargebackWaiting,
	}
	for _, s := range waiting {
		if !s.IsWaiting() {
			t.Errorf("%s 应当是等待态", s)
		}
	}

	if !StatusApproved.IsPaid() || !StatusIntegrated.IsPaid() {
		t.Error("已支付/已入账应当算收到款项")
	}
	if StatusPending.IsPaid() {
		t.Error("待支付不应算收到款项")
	}
}
