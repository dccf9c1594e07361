package inmemdb

import (
	"context"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
)

type tokenRepository struct {
	db *tokenTable
}

var _ auth.TokenRepository = (*tokenRepository)(nil)

func NewTokenRepository(db *DB) auth.TokenRepository {
	return &tokenRepository{db: db.token}
}

func copyToken(tok auth.RememberToken) auth.RememberToken {
	tok.TokenHash = append([]byte(nil), tok.TokenHash...)
	return tok
}

func (repo *tokenRepository) CreateToken(_ context.Context, tok auth.RememberToken, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored := copyToken(tok)
	repo.db.table[tokenKey{tok.Username, tok.Series}] = &stored
	return nil
}

func (repo *tokenRepository) GetToken(_ context.Context, username, series string, _ ...core.DBExecutor) (auth.RememberToken, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if tok, ok := repo.db.table[tokenKey{username, series}]; ok {
		return copyToken(*tok), nil
	}
	return auth.RememberToken{}, auth.ErrTokenNotFound
}

func (repo *tokenRepository) UpdateToken(_ context.Context, tok auth.RememberToken, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := tokenKey{tok.Username, tok.Series}
	if _, ok := repo.db.table[key]; !ok {
		return auth.ErrTokenNotFound
	}
	stored := copyToken(tok)
	repo.db.table[key] = &stored
	return nil
}

func (repo *tokenRepository) DeleteToken(_ context.Context, username, series string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	key := tokenKey{username, series}
	if _, ok := repo.db.table[key]; !ok {
		return auth.ErrTokenNotFound
	}
	delete(repo.db.table, key)
	return nil
}

func (repo *tokenRepository) DeleteUserTokens(_ context.Context, username string, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var cnt int
	for key := range repo.db.table {
		if key.username == username {
			delete(repo.db.table, key)
			cnt++
		}
	}
	return cnt, nil
}
