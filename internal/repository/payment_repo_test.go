package repository

import (
	"testing"

	"payrecon/internal/model"
)

func containsStatus(set []model.PaymentStatus, s model.PaymentStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func TestInFlightStatusesCoverRemoteMutableStates(t *testing.T) {
	// 已收款的记录仍可能被网关侧退款，丢了 webhook 后只有轮询能兜底
	for _, s := range []model.PaymentStatus{model.StatusApproved, model.StatusIntegrated} {
		if !containsStatus(inFlightStatuses, s) {
			t.Errorf("轮询集合缺少 %s", s)
		}
	}

	// 终态没有出边，轮询盯着纯属浪费
	for _, s := range inFlightStatuses {
		if s.IsTerminal() {
			t.Errorf("终态 %s 不应在轮询集合里", s)
		}
	}
}

func TestExpirableStatusesMatchTransitionTable(t *testing.T) {
	// 候选集里的状态必须真能迁移到已过期，否则清扫每轮空转
	for _, s := range expirableStatuses {
		if !model.CanTransitionTo(s, model.StatusExpired) {
			t.Errorf("%s 没有到 EXPIRED 的出边，不应在清扫候选集里", s)
		}
	}

	// 反向：凡是能过期的状态都要被清扫覆盖
	for from := range model.ValidStatusTransitions {
		if model.CanTransitionTo(from, model.StatusExpired) && !containsStatus(expirableStatuses, from) {
			t.Errorf("%s 可以过期却不在清扫候选集里", from)
		}
	}
}
