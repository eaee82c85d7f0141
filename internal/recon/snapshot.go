package recon

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"payrecon/internal/model"
)

// ErrMalformedPayload 网关报文缺少必要字段，调用方应当丢弃并记录，不得重试
var ErrMalformedPayload = errors.New("网关报文格式非法")

// ============================================================================
// 网关状态词汇归一化
// ============================================================================
//
// 网关侧的状态是小写葡语单词，和本地状态编码是两套词汇。
// 报文解析时一次性归一化成封闭的 RemoteStatus 标签，
// 之后的所有逻辑只对标签做 switch，绝不再碰原始字符串。
// ============================================================================

// RemoteStatus 网关订单状态标签
type RemoteStatus int

const (
	RemoteUnknown    RemoteStatus = iota // 未识别，对账时视为不可操作
	RemotePending                        // pendente 等待支付
	RemoteAuthorized                     // autorizado 已授权（反欺诈预留）
	RemoteApproved                       // aprovado 已支付
	RemoteIntegrated                     // integrado 已清算入账
	RemoteCancelled                      // cancelado 已取消
	RemoteRefunded                       // estornado 已退款
)

func (s RemoteStatus) String() string {
	switch s {
	case RemotePending:
		return "pending"
	case RemoteAuthorized:
		return "authorized"
	case RemoteApproved:
		return "approved"
	case RemoteIntegrated:
		return "integrated"
	case RemoteCancelled:
		return "cancelled"
	case RemoteRefunded:
		return "refunded"
	}
	return "unknown"
}

// parseRemoteStatus 网关状态词 -> 标签，这是两套词汇表之间唯一的映射点
func parseRemoteStatus(raw string) RemoteStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "pendente":
		return RemotePending
	case "autorizado":
		return RemoteAuthorized
	case "aprovado":
		return RemoteApproved
	case "integrado":
		return RemoteIntegrated
	case "cancelado":
		return RemoteCancelled
	case "estornado":
		return RemoteRefunded
	}
	return RemoteUnknown
}

// OrderOrigin 网关订单来源
type OrderOrigin int

const (
	OriginNone OrderOrigin = iota
	OriginAPI              // 商城自己通过 API 下的单
	OriginSite             // 网关店面下单
	OriginRecovery         // 催付挽回
	OriginPartnerTeam      // 合作方团队
	OriginCallCenter       // 话务中心
)

func parseOrigin(raw string) OrderOrigin {
	switch strings.TrimSpace(raw) {
	case "API":
		return OriginAPI
	case "Site":
		return OriginSite
	case "Recuperação":
		return OriginRecovery
	case "Equipe Parceiro":
		return OriginPartnerTeam
	case "Call Center":
		return OriginCallCenter
	}
	return OriginNone
}

// IsCallCenterClass 话务中心类来源：催付、合作方、话务中心
// 这三类来源的交易先发生在网关侧，本地可能还没有订单
func (o OrderOrigin) IsCallCenterClass() bool {
	return o == OriginRecovery || o == OriginPartnerTeam || o == OriginCallCenter
}

// ============================================================================
// 远端订单快照
// ============================================================================

// Snapshot 网关订单状态的只读投影
//
// 每次对账构造一次，构造后不再修改。
// 既可以来自「查订单」接口的响应体，也可以来自 webhook 事件的 data 字段，
// 两者报文形状一致。
type Snapshot struct {
	RemoteOrderID    int64
	RemoteCustomerID int64
	Status           RemoteStatus
	Origin           OrderOrigin
	// Method 归一化后的本地支付方式常量，报文未带或不识别时为空串
	Method       string
	Total        int64 // 订单总额（分），可能含分期利息
	PaidAt       *time.Time
	IntegratedAt *time.Time
	// MethodDetail 支付方式相关的嵌套明细（票据条码、转账二维码等），
	// 对账逻辑不关心内容，原样保留给建单方
	MethodDetail map[string]interface{}
}

// ParseSnapshot 从网关的泛型键值报文构造快照
// 缺少 id 或 customer_id 返回 ErrMalformedPayload，调用方必须中止处理
func ParseSnapshot(data map[string]interface{}) (*Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 空报文", ErrMalformedPayload)
	}

	id, ok := anyToInt64(data["id"])
	if !ok || id <= 0 {
		return nil, fmt.Errorf("%w: 缺少订单 id", ErrMalformedPayload)
	}

	customerID, ok := anyToInt64(data["customer_id"])
	if !ok || customerID <= 0 {
		return nil, fmt.Errorf("%w: 缺少 customer_id", ErrMalformedPayload)
	}

	snap := &Snapshot{
		RemoteOrderID:    id,
		RemoteCustomerID: customerID,
		Status:           parseRemoteStatus(anyToString(data["status"])),
		Origin:           parseOrigin(anyToString(data["origin"])),
		Method:           parsePaymentType(anyToString(data["payment_type"])),
		Total:            anyToCents(data["total"]),
		PaidAt:           anyToTime(data["paid_at"]),
		IntegratedAt:     anyToTime(data["integrated_at"]),
	}

	if detail, ok := data["payment_detail"].(map[string]interface{}); ok {
		snap.MethodDetail = detail
	}

	return snap, nil
}

// parsePaymentType 网关支付方式词 -> 本地常量
func parsePaymentType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "boleto":
		return model.MethodBankSlip
	case "pix":
		return model.MethodInstantTransfer
	case "creditcard", "credit_card", "credit-card":
		return model.MethodCreditCard
	}
	return ""
}

// ============================================================================
// 报文字段解析工具
// ============================================================================

func anyToString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func anyToInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

// anyToCents 网关金额是带两位小数的十进制数，落地统一为分
func anyToCents(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(math.Round(n * 100))
	case int64:
		return n * 100
	case int:
		return int64(n) * 100
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return int64(math.Round(f * 100))
	}
	return 0
}

// 网关时间戳格式，票据类报文的 paid_at 可能只带日期
const (
	gatewayTimeLayout = "2006-01-02 15:04:05"
	gatewayDateLayout = "2006-01-02"
)

func anyToTime(v interface{}) *time.Time {
	s := anyToString(v)
	if s == "" {
		return nil
	}

	for _, layout := range []string{gatewayTimeLayout, gatewayDateLayout} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return &t
		}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	return nil
}
