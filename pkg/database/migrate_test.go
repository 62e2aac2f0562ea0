package database

import (
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"
)

// 每个版本必须同时具备 up 与 down 脚本
func TestEmbeddedMigrations_Paired(t *testing.T) {
	src, err := embeddedSource()
	if err != nil {
		t.Fatalf("加载迁移源失败: %v", err)
	}
	defer src.Close()

	version, err := src.First()
	if err != nil {
		t.Fatalf("未找到任何迁移: %v", err)
	}

	count := 0
	for {
		count++
		up, _, err := src.ReadUp(version)
		if err != nil {
			t.Fatalf("版本 %d 缺少 up 脚本: %v", version, err)
		}
		body, _ := io.ReadAll(up)
		up.Close()
		if len(strings.TrimSpace(string(body))) == 0 {
			t.Errorf("版本 %d 的 up 脚本为空", version)
		}

		down, _, err := src.ReadDown(version)
		if err != nil {
			t.Fatalf("版本 %d 缺少 down 脚本: %v", version, err)
		}
		down.Close()

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		if err != nil {
			t.Fatalf("读取下一个版本失败: %v", err)
		}
		version = next
	}

	if count == 0 {
		t.Fatal("迁移数量为 0")
	}
}

func TestEmbeddedMigrations_CoreTables(t *testing.T) {
	src, err := embeddedSource()
	if err != nil {
		t.Fatalf("加载迁移源失败: %v", err)
	}
	defer src.Close()

	first, err := src.First()
	if err != nil {
		t.Fatalf("未找到任何迁移: %v", err)
	}
	up, _, err := src.ReadUp(first)
	if err != nil {
		t.Fatalf("读取 up 脚本失败: %v", err)
	}
	defer up.Close()
	body, _ := io.ReadAll(up)
	sql := string(body)

	for _, table := range []string{"identities", "profiles", "invites", "enrollments"} {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("初始迁移缺少表 %s", table)
		}
	}
	// 活跃师生关系的部分唯一索引是幂等接受的前提
	if !strings.Contains(sql, "WHERE active") {
		t.Error("enrollments 缺少 active 部分唯一索引")
	}
}
