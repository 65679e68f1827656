package service

import (
	"errors"
	"fmt"
	"testing"

	"facultylink/internal/models"
)

func TestMessageService_SendAndHistory(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.Send(room.ID, "Ada", "hello", nil, "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.ID == 0 {
		t.Error("Send() did not assign a server-side id")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("Send() did not assign a server-side timestamp")
	}
	if msg.Edited {
		t.Error("Send() new message must not be marked edited")
	}
	if len(msg.Reactions) != 0 {
		t.Errorf("Send() reactions = %v, want empty", msg.Reactions)
	}

	got, err := svc.ListByRoom(room.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "hello" {
		t.Errorf("ListByRoom() = %v, want the sent message", got)
	}
}

func TestMessageService_HistoryOldestFirstAndCapped(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 5, 24, t.TempDir())

	for i := 0; i < 12; i++ {
		if _, err := svc.Send(room.ID, "Ada", fmt.Sprintf("msg-%d", i), nil, ""); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	got, err := svc.ListByRoom(room.ID, 0, 0)
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("ListByRoom() returned %d messages, want the 5-window", len(got))
	}
	// 最近的一窗，升序排列
	if got[0].Content != "msg-7" || got[4].Content != "msg-11" {
		t.Errorf("ListByRoom() window = [%s..%s], want [msg-7..msg-11]", got[0].Content, got[4].Content)
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Error("ListByRoom() must be oldest-first")
		}
	}
}

func TestMessageService_EditOwnership(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.Send(room.ID, "Ada", "original", nil, "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := svc.Edit(msg.ID, "Mallory", "hacked"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Edit() by non-owner error = %v, want ErrNotOwner", err)
	}
	var stored models.Message
	if err := gdb.First(&stored, msg.ID).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	if stored.Content != "original" || stored.Edited {
		t.Error("Edit() by non-owner must leave stored content unchanged")
	}

	updated, err := svc.Edit(msg.ID, "Ada", "fixed")
	if err != nil {
		t.Fatalf("Edit() by owner error = %v", err)
	}
	if updated.Content != "fixed" || !updated.Edited {
		t.Errorf("Edit() = %+v, want content fixed and edited flag set", updated)
	}

	if _, err := svc.Edit(99999, "Ada", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit() missing message error = %v, want ErrNotFound", err)
	}
}

func TestMessageService_DeleteRemovesFromHistory(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.Send(room.ID, "Ada", "to be removed", nil, "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if _, err := svc.Delete(msg.ID, "Mallory"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("Delete() by non-owner error = %v, want ErrNotOwner", err)
	}

	deleted, err := svc.Delete(msg.ID, "Ada")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted.RoomID != room.ID {
		t.Errorf("Delete() room = %d, want %d", deleted.RoomID, room.ID)
	}

	got, err := svc.ListByRoom(room.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListByRoom() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("history after delete has %d messages, want 0", len(got))
	}
}

func TestMessageService_React(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.Send(room.ID, "Ada", "react to me", nil, "")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// 同一用户重复 reaction 不去重：两次就是 2
	for i := 0; i < 2; i++ {
		if _, err := svc.React(msg.ID, "heart", false); err != nil {
			t.Fatalf("React() error = %v", err)
		}
	}
	var stored models.Message
	if err := gdb.First(&stored, msg.ID).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	if stored.Reactions["heart"] != 2 {
		t.Errorf("reaction count = %d, want raw increment 2", stored.Reactions["heart"])
	}

	// 计数只减到 0，不会为负
	for i := 0; i < 3; i++ {
		if _, err := svc.React(msg.ID, "heart", true); err != nil {
			t.Fatalf("React(remove) error = %v", err)
		}
	}
	if err := gdb.First(&stored, msg.ID).Error; err != nil {
		t.Fatalf("reload message: %v", err)
	}
	if n, ok := stored.Reactions["heart"]; ok && n != 0 {
		t.Errorf("reaction count after removes = %d, want 0", n)
	}
}

func TestMessageService_ReactMissingIsNoop(t *testing.T) {
	gdb := testDB(t)
	seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.React(424242, "heart", false)
	if err != nil {
		t.Errorf("React() on missing message error = %v, want nil", err)
	}
	if msg != nil {
		t.Errorf("React() on missing message = %+v, want nil no-op", msg)
	}
}

func TestMessageService_AttachImage(t *testing.T) {
	gdb := testDB(t)
	room := seedRoom(t, gdb, "General", models.RoomGeneral)
	svc := NewMessageService(gdb, 50, 24, t.TempDir())

	msg, err := svc.AttachImage(room.ID, "Ada", "", "/uploads/a.png")
	if err != nil {
		t.Fatalf("AttachImage() error = %v", err)
	}
	if msg.Content != "[image]" {
		t.Errorf("AttachImage() caption = %q, want placeholder", msg.Content)
	}
	if msg.ImageURL == nil || *msg.ImageURL != "/uploads/a.png" {
		t.Error("AttachImage() did not store the image url")
	}
	if msg.ImageExpiresAt == nil || msg.ImageExpiresAt.Before(msg.CreatedAt) {
		t.Error("AttachImage() expiry must be in the future")
	}

	captioned, err := svc.AttachImage(room.ID, "Ada", "my chart", "/uploads/b.png")
	if err != nil {
		t.Fatalf("AttachImage() error = %v", err)
	}
	if captioned.Content != "my chart" {
		t.Errorf("AttachImage() caption = %q, want the supplied one", captioned.Content)
	}
}
