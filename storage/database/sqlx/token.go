package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/cs61as/coursesite/core"
	"github.com/cs61as/coursesite/core/auth"
)

type tokenRow struct {
	Username  string    `db:"username"`
	Series    string    `db:"series"`
	TokenHash []byte    `db:"token_hash"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type tokenRepository struct {
	base
}

var _ auth.TokenRepository = (*tokenRepository)(nil)

func NewTokenRepository(exec core.DBExecutor) auth.TokenRepository {
	return &tokenRepository{base{exec: exec}}
}

func (repo tokenRepository) CreateToken(ctx context.Context, tok auth.RememberToken, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		"INSERT INTO remember_tokens (username, series, token_hash, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		tok.Username, tok.Series, tok.TokenHash, tok.CreatedAt.UTC(), tok.UpdatedAt.UTC(),
	)
	return errors.Wrap(err, "inserting remember token")
}

func (repo tokenRepository) GetToken(ctx context.Context, username, series string, exec ...core.DBExecutor) (auth.RememberToken, error) {
	row, err := selectOne[tokenRow](ctx, repo.getExec(exec), auth.ErrTokenNotFound,
		"SELECT username, series, token_hash, created_at, updated_at FROM remember_tokens WHERE username = $1 AND series = $2",
		username, series,
	)
	if err != nil {
		return auth.RememberToken{}, trapNotFound(err, auth.ErrTokenNotFound, "selecting remember token")
	}
	return auth.RememberToken{
		Username:  row.Username,
		Series:    row.Series,
		TokenHash: row.TokenHash,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}

func (repo tokenRepository) UpdateToken(ctx context.Context, tok auth.RememberToken, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"UPDATE remember_tokens SET token_hash = $3, updated_at = $4 WHERE username = $1 AND series = $2",
		tok.Username, tok.Series, tok.TokenHash, tok.UpdatedAt.UTC(),
	)
	if err != nil {
		return errors.Wrap(err, "updating remember token")
	}
	_, err = affected(res, auth.ErrTokenNotFound)
	return err
}

func (repo tokenRepository) DeleteToken(ctx context.Context, username, series string, exec ...core.DBExecutor) error {
	res, err := repo.getExec(exec).ExecContext(ctx,
		"DELETE FROM remember_tokens WHERE username = $1 AND series = $2", username, series)
	if err != nil {
		return errors.Wrap(err, "deleting remember token")
	}
	_, err = affected(res, auth.ErrTokenNotFound)
	return err
}

func (repo tokenRepository) DeleteUserTokens(ctx context.Context, username string, exec ...core.DBExecutor) (int, error) {
	res, err := repo.getExec(exec).ExecContext(ctx, "DELETE FROM remember_tokens WHERE username = $1", username)
	if err != nil {
		return 0, errors.Wrap(err, "deleting remember tokens")
	}
	return affected(res, nil)
}
