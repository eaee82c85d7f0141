package model

import (
	"time"
)

// 状态变更来源渠道
const (
	SourceWebhook = "WEBHOOK" // 网关推送
	SourcePolling = "POLLING" // 定时轮询
	SourceSweep   = "SWEEP"   // 本地过期清扫
	SourceManual  = "MANUAL"  // 人工操作
)

// StatusLog 状态迁移流水表
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 每条流水必须关联支付记录和网关订单号 —— 便于对账排查
// 3. 记录来源渠道 —— webhook 与轮询双通道竞争时定位先后手
type StatusLog struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID     int64         `gorm:"index;not null" json:"payment_id"`
	RemoteOrderID int64         `gorm:"index;not null" json:"remote_order_id"`
	FromStatus    PaymentStatus `gorm:"not null" json:"from_status"`
	ToStatus      PaymentStatus `gorm:"not null" json:"to_status"`
	Source        string        `gorm:"type:varchar(16);not null" json:"source"`
	Remark        string        `gorm:"type:varchar(256)" json:"remark"`
	CreatedAt     time.Time     `gorm:"autoCreateTime;index" json:"created_at"`
}

func (StatusLog) TableName() string {
	return "status_log"
}
