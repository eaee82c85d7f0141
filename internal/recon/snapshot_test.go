package recon

import (
	"errors"
	"testing"
	"time"

	"payrecon/internal/model"
)

func TestParseRemoteStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want RemoteStatus
	}{
		{"pendente", RemotePending},
		{"autorizado", RemoteAuthorized},
		{"aprovado", RemoteApproved},
		{"integrado", RemoteIntegrated},
		{"cancelado", RemoteCancelled},
		{"estornado", RemoteRefunded},
		{"  Aprovado  ", RemoteApproved}, // 大小写与空白归一化
		{"foo", RemoteUnknown},
		{"", RemoteUnknown},
	}

	for _, tt := range tests {
		if got := parseRemoteStatus(tt.raw); got != tt.want {
			t.Errorf("parseRemoteStatus(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestOriginCallCenterClass(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"Recuperação", true},
		{"Equipe Parceiro", true},
		{"Call Center", true},
		{"API", false},
		{"Site", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := parseOrigin(tt.raw).IsCallCenterClass(); got != tt.want {
			t.Errorf("parseOrigin(%q).IsCallCenterClass() = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestParseSnapshot(t *testing.T) {
	data := map[string]interface{}{
		"id":           float64(12345), // JSON 解码后数字都是 float64
		"customer_id":  float64(678),
		"status":       "aprovado",
		"origin":       "Call Center",
		"payment_type": "boleto",
		"total":        199.90,
		"paid_at":      "2025-03-01 10:30:00",
		"payment_detail": map[string]interface{}{
			"barcode": "34191.79001",
		},
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}

	if snap.RemoteOrderID != 12345 {
		t.Errorf("RemoteOrderID = %d, want 12345", snap.RemoteOrderID)
	}
	if snap.RemoteCustomerID != 678 {
		t.Errorf("RemoteCustomerID = %d, want 678", snap.RemoteCustomerID)
	}
	if snap.Status != RemoteApproved {
		t.Errorf("Status = %v, want RemoteApproved", snap.Status)
	}
	if !snap.Origin.IsCallCenterClass() {
		t.Errorf("Origin = %v, 应为话务中心类", snap.Origin)
	}
	if snap.Method != model.MethodBankSlip {
		t.Errorf("Method = %q, want BANK_SLIP", snap.Method)
	}
	// 金额归一化为分
	if snap.Total != 19990 {
		t.Errorf("Total = %d, want 19990", snap.Total)
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.Local)
	if snap.PaidAt == nil || !snap.PaidAt.Equal(want) {
		t.Errorf("PaidAt = %v, want %v", snap.PaidAt, want)
	}
	if snap.MethodDetail["barcode"] != "34191.79001" {
		t.Errorf("MethodDetail 应原样保留, got %v", snap.MethodDetail)
	}
}

func TestParseSnapshotMalformed(t *testing.T) {
	tests := []struct {
		name string
		data map[string]interface{}
	}{
		{"空报文", nil},
		{"缺少订单id", map[string]interface{}{"customer_id": float64(1), "status": "aprovado"}},
		{"缺少客户id", map[string]interface{}{"id": float64(1), "status": "aprovado"}},
		{"订单id非法", map[string]interface{}{"id": "abc", "customer_id": float64(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSnapshot(tt.data)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("err = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestAnyToCents(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want int64
	}{
		{"浮点金额", 199.90, 19990},
		{"浮点精度", 0.1 + 0.2, 30}, // 0.30000000000000004 -> 30
		{"整数金额", 50, 5000},
		{"字符串金额", "12.34", 1234},
		{"非法字符串", "abc", 0},
		{"空值", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := anyToCents(tt.in); got != tt.want {
				t.Errorf("anyToCents(%v) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseSnapshotDateOnlyPaidAt(t *testing.T) {
	// 票据类报文的 paid_at 常常只有日期，不能丢
	data := map[string]interface{}{
		"id":          float64(42),
		"customer_id": float64(7),
		"status":      "aprovado",
		"paid_at":     "2024-01-10",
	}

	snap, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("ParseSnapshot: %v", err)
	}

	want := time.Date(2024, 1, 10, 0, 0, 0, 0, time.Local)
	if snap.PaidAt == nil || !snap.PaidAt.Equal(want) {
		t.Errorf("PaidAt = %v, want %v", snap.PaidAt, want)
	}
}

func TestAnyToTimeFallbackRFC3339(t *testing.T) {
	got := anyToTime("2025-03-01T10:30:00Z")
	if got == nil {
		t.Fatal("RFC3339 格式应当可解析")
	}
	want := time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if anyToTime("not a time") != nil {
		t.Error("非法时间串应返回 nil")
	}
	if anyToTime("") != nil {
		t.Error("空串应返回 nil")
	}
}
