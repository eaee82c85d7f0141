package job

import (
	"testing"
	"time"

	"payrecon/internal/model"
)

func TestPageCursorAdvance(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// 整页记录共享同一个 updated_at（批量写入的常见形态）
	page := []*model.PaymentRecord{
		{ID: 11, UpdatedAt: at},
		{ID: 12, UpdatedAt: at},
		{ID: 13, UpdatedAt: at},
	}

	var cursor pageCursor
	cursor.advance(page)

	if !cursor.updatedAt.Equal(at) {
		t.Errorf("updatedAt = %v, want %v", cursor.updatedAt, at)
	}
	// 游标必须记住页尾的 id，同秒的下一页记录才不会被跳过
	if cursor.id != 13 {
		t.Errorf("id = %d, want 13", cursor.id)
	}

	next := []*model.PaymentRecord{
		{ID: 14, UpdatedAt: at},
		{ID: 15, UpdatedAt: at.Add(time.Second)},
	}
	cursor.advance(next)

	if !cursor.updatedAt.Equal(at.Add(time.Second)) || cursor.id != 15 {
		t.Errorf("cursor = (%v, %d), want (%v, 15)", cursor.updatedAt, cursor.id, at.Add(time.Second))
	}
}
