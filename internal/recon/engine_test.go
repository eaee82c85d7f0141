package recon

import (
	"testing"
	"time"

	"payrecon/internal/config"
	"payrecon/internal/model"
)

func testReconcileConfig() *config.ReconcileConfig {
	return &config.ReconcileConfig{
		CallCenter:      config.CallCenterOnPaid,
		CreateFromAPI:   false,
		BankSlip:        config.MethodPolicy{Enabled: true, MustExpire: true, ExpiresAfterDays: 3},
		CreditCard:      config.MethodPolicy{Enabled: true},
		InstantTransfer: config.MethodPolicy{Enabled: true, MustExpire: true, ExpiresInSeconds: 1800},
	}
}

func pendingSlip(expiresAt *time.Time) *model.PaymentRecord {
	return &model.PaymentRecord{
		ID:            1,
		RemoteOrderID: 1001,
		PaymentMethod: model.MethodBankSlip,
		Status:        model.StatusPending,
		Amount:        19990,
		PayReference:  "PR2025030100000001",
		ExpiresAt:     expiresAt,
	}
}

func linkedOrder(status string) *model.LocalOrder {
	return &model.LocalOrder{ID: 7, Status: status}
}

func effectNames(effects []Effect) []string {
	names := make([]string, 0, len(effects))
	for _, e := range effects {
		names = append(names, e.EffectName())
	}
	return names
}

func assertSingleEffect(t *testing.T, out Outcome, want string) {
	t.Helper()
	if len(out.Effects) != 1 || out.Effects[0].EffectName() != want {
		t.Fatalf("effects = %v, want [%s]", effectNames(out.Effects), want)
	}
}

// ----------------------------------------------------------------------------
// Case A 纯本地评估
// ----------------------------------------------------------------------------

func TestReconcileLocalExpiry(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	record := pendingSlip(&base)
	out := engine.Reconcile(record, nil, nil, base.AddDate(0, 0, 9))

	if !out.Changed || out.To != model.StatusExpired {
		t.Fatalf("记录应过期: %+v", out)
	}
	if out.From != model.StatusPending {
		t.Errorf("From = %s, want PENDING", out.From)
	}
	assertSingleEffect(t, out, "order_local_expired")
}

func TestReconcileLocalNotYetExpired(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	record := pendingSlip(&base)
	out := engine.Reconcile(record, nil, nil, base.AddDate(0, 0, 2))

	if out.Changed || len(out.Effects) != 0 {
		t.Fatalf("宽限期内不应有任何动作: %+v", out)
	}
	if record.Status != model.StatusPending {
		t.Errorf("status = %s, 应保持 PENDING", record.Status)
	}
}

func TestReconcileNilRecordNilSnapshot(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	out := engine.Reconcile(nil, nil, nil, time.Now())
	if out.Changed || out.Rejected || len(out.Effects) != 0 {
		t.Fatalf("空输入应当空转: %+v", out)
	}
}

// ----------------------------------------------------------------------------
// Case B 建单路径
// ----------------------------------------------------------------------------

func TestReconcileUnlinkedOrderCreation(t *testing.T) {
	tests := []struct {
		name          string
		callCenter    string
		createFromAPI bool
		origin        string
		status        RemoteStatus
		wantCreate    bool
	}{
		{"话务中心已支付且策略on_paid", config.CallCenterOnPaid, false, "Call Center", RemoteApproved, true},
		{"催付来源同属话务中心类", config.CallCenterOnPaid, false, "Recuperação", RemoteApproved, true},
		{"合作方团队同属话务中心类", config.CallCenterOnPaid, false, "Equipe Parceiro", RemoteIntegrated, true},
		{"策略on_integrated时已支付不建单", config.CallCenterOnIntegrated, false, "Call Center", RemoteApproved, false},
		{"策略on_integrated时已入账建单", config.CallCenterOnIntegrated, false, "Call Center", RemoteIntegrated, true},
		{"策略never不建单", config.CallCenterNever, false, "Call Center", RemoteIntegrated, false},
		{"等待支付不建单", config.CallCenterOnPaid, false, "Call Center", RemotePending, false},
		{"API来源开关关闭不建单", config.CallCenterOnPaid, false, "API", RemoteApproved, false},
		{"API来源开关开启建单", config.CallCenterOnPaid, true, "API", RemoteApproved, true},
		{"店面来源从不建单", config.CallCenterOnPaid, true, "Site", RemoteApproved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testReconcileConfig()
			cfg.CallCenter = tt.callCenter
			cfg.CreateFromAPI = tt.createFromAPI
			engine := NewEngine(cfg)

			snap := &Snapshot{
				RemoteOrderID:    1001,
				RemoteCustomerID: 55,
				Status:           tt.status,
				Origin:           parseOrigin(tt.origin),
				Total:            19990,
			}

			out := engine.Reconcile(nil, nil, snap, time.Now())

			if tt.wantCreate {
				if out.Changed {
					t.Error("建单路径不应变更状态")
				}
				assertSingleEffect(t, out, "order_should_be_created")
				created := out.Effects[0].(EffectOrderShouldBeCreated)
				if created.Snapshot != snap {
					t.Error("建单效果应携带完整快照")
				}
			} else {
				if len(out.Effects) != 0 || out.Changed {
					t.Errorf("不应建单: %+v", out)
				}
			}
		})
	}
}

func TestReconcileUnlinkedFallsBackToLocalExpiry(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// 有记录没订单，远端还在等待支付：不建单，退回本地过期评估
	record := pendingSlip(&base)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemotePending, Origin: OriginSite}

	out := engine.Reconcile(record, nil, snap, base.AddDate(0, 0, 9))
	if !out.Changed || out.To != model.StatusExpired {
		t.Fatalf("应走本地过期: %+v", out)
	}
	assertSingleEffect(t, out, "order_local_expired")
}

// ----------------------------------------------------------------------------
// Case C 主路径判定链
// ----------------------------------------------------------------------------

func TestReconcileLocalTerminalOrderWins(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	now := time.Now()

	// 本地订单已取消，远端说已支付 —— 本地终态优先
	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteApproved, Total: 19990}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusCancelled), snap, now)

	if !out.Changed || out.To != model.StatusCancelled {
		t.Fatalf("支付记录应对齐到订单终态: %+v", out)
	}
	if len(out.Effects) != 0 {
		t.Errorf("对齐不应产生效果: %v", effectNames(out.Effects))
	}
}

func TestReconcileRemoteApproved(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	paidAt := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)

	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteApproved, Total: 20990, PaidAt: &paidAt}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, time.Now())

	if !out.Changed || out.To != model.StatusApproved {
		t.Fatalf("应迁移到已支付: %+v", out)
	}
	assertSingleEffect(t, out, "order_paid")

	paid := out.Effects[0].(EffectOrderPaid)
	// 实付金额来自快照（可能含分期利息），不是请求金额
	if paid.AmountPaid != 20990 {
		t.Errorf("AmountPaid = %d, want 20990", paid.AmountPaid)
	}
	if paid.PayReference != record.PayReference {
		t.Errorf("PayReference = %q, want %q", paid.PayReference, record.PayReference)
	}
	if !paid.PaidAt.Equal(paidAt) {
		t.Errorf("PaidAt = %v, want %v", paid.PaidAt, paidAt)
	}
	if paid.Integrated {
		t.Error("Approved 不应标记已入账")
	}
	if record.AmountPaid == nil || *record.AmountPaid != 20990 {
		t.Errorf("记录实付金额未写入: %v", record.AmountPaid)
	}
}

func TestReconcileRemoteIntegratedSkipsApproved(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	now := time.Now()

	// 等待支付直接收到已入账（跳过已支付通知）
	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteIntegrated, Total: 19990}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, now)

	if !out.Changed || out.To != model.StatusIntegrated {
		t.Fatalf("应直接迁移到已入账: %+v", out)
	}
	assertSingleEffect(t, out, "order_paid")
	if !out.Effects[0].(EffectOrderPaid).Integrated {
		t.Error("入账效果应带 Integrated 标记")
	}
	if record.PaidAt == nil {
		t.Error("paid_at 应被补齐")
	}
}

func TestReconcileRemoteAuthorized(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteAuthorized}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, time.Now())

	if !out.Changed || out.To != model.StatusInAnalysis {
		t.Fatalf("已授权应进入审核: %+v", out)
	}
	assertSingleEffect(t, out, "order_held_for_review")
}

func TestReconcileRemoteCancelled(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteCancelled}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, time.Now())

	if !out.Changed || out.To != model.StatusCancelled {
		t.Fatalf("应迁移到已取消: %+v", out)
	}
	assertSingleEffect(t, out, "order_cancelled")
}

func TestReconcileRemoteRefunded(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	now := time.Date(2025, 3, 5, 8, 0, 0, 0, time.UTC)

	record := pendingSlip(nil)
	record.Status = model.StatusApproved
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteRefunded}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusProcessing), snap, now)

	if !out.Changed || out.To != model.StatusRefunded {
		t.Fatalf("应迁移到已退款: %+v", out)
	}
	assertSingleEffect(t, out, "order_refunded")
	if record.RefundedAt == nil || !record.RefundedAt.Equal(now) {
		t.Errorf("refunded_at = %v, want %v", record.RefundedAt, now)
	}
}

func TestReconcileRemotePendingButLocallyExpired(t *testing.T) {
	engine := NewEngine(testReconcileConfig())
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	record := pendingSlip(&base)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemotePending}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, base.AddDate(0, 0, 9))

	if !out.Changed || out.To != model.StatusExpired {
		t.Fatalf("远端仍等待但本地应判过期: %+v", out)
	}
	assertSingleEffect(t, out, "order_expired")
}

func TestReconcileDuplicateDeliveryIsSilentNoop(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	// 已支付的记录再次收到已支付通知：迁移表拒绝，静默空操作
	record := pendingSlip(nil)
	record.Status = model.StatusApproved
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteApproved, Total: 19990}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusProcessing), snap, time.Now())

	if out.Changed {
		t.Fatalf("重复投递不应变更状态: %+v", out)
	}
	if !out.Rejected {
		t.Error("Rejected 应置位供驱动打日志")
	}
	if record.Status != model.StatusApproved {
		t.Errorf("status = %s, 应保持 APPROVED", record.Status)
	}
}

func TestReconcileConflictingCancelOnIntegrated(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	// 已入账的记录收到取消：非法迁移，拒绝且不动记录
	record := pendingSlip(nil)
	record.Status = model.StatusIntegrated
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteCancelled}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusProcessing), snap, time.Now())

	if out.Changed || !out.Rejected {
		t.Fatalf("冲突迁移应被拒绝: %+v", out)
	}
	if record.Status != model.StatusIntegrated {
		t.Errorf("status = %s, 应保持 INTEGRATED", record.Status)
	}
}

func TestReconcileUnknownRemoteStatusNoop(t *testing.T) {
	engine := NewEngine(testReconcileConfig())

	record := pendingSlip(nil)
	record.LinkOrder(7)
	snap := &Snapshot{RemoteOrderID: 1001, RemoteCustomerID: 55, Status: RemoteUnknown}

	out := engine.Reconcile(record, linkedOrder(model.OrderStatusPending), snap, time.Now())

	if out.Changed || out.Rejected || len(out.Effects) != 0 {
		t.Fatalf("不可识别的远端状态应空转: %+v", out)
	}
}
