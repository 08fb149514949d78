package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// pgUniqueViolation は PostgreSQL の一意制約違反コードです。
const pgUniqueViolation = "23505"

// IsUniqueViolation は err が一意制約違反かどうかを判定します。
// TranslateError が有効な場合の gorm.ErrDuplicatedKey に加え、
// 変換されなかった pgx / sqlite のエラーも判定します。
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
