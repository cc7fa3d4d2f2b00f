package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/sessiongate/internal/model"
)

// MemoryUserRepo はプロセス内メモリに保持するユーザーリポジトリ。
// ローカル開発（STORE_DRIVER=memory）とテストで使用する。
// subject_idの一意性はミューテックス下のマップで保証する。
type MemoryUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

// NewMemoryUserRepo はMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*model.User)}
}

// FindBySubject はsubject_idでユーザーを取得する。見つからない場合はnilを返す。
func (r *MemoryUserRepo) FindBySubject(_ context.Context, subjectID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

// UpdateLogin はプロフィール項目を上書きし、last_loginを max(既存値, at) に更新する。
func (r *MemoryUserRepo) UpdateLogin(_ context.Context, subjectID string, profile model.LoginProfile, at time.Time) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[subjectID]
	if !ok {
		return nil, nil
	}
	u.Email = profile.Email
	u.DisplayName = profile.DisplayName
	u.PictureURL = profile.PictureURL
	if at.After(u.LastLogin) {
		u.LastLogin = at
	}
	cp := *u
	return &cp, nil
}

// Insert はユーザーを作成する。
func (r *MemoryUserRepo) Insert(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.SubjectID]; exists {
		return fmt.Errorf("user already exists for subject: %w", model.ErrPersistenceConflict)
	}
	cp := *user
	r.users[user.SubjectID] = &cp
	return nil
}

// PingContext は常に成功する。
func (r *MemoryUserRepo) PingContext(_ context.Context) error {
	return nil
}

// Count は保持しているユーザー数を返す。テスト用。
func (r *MemoryUserRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

// compile-time interface check
var _ UserStore = (*MemoryUserRepo)(nil)
