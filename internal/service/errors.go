package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"

	"scan-licences/internal/model"
)

// MySQL server error numbers.
const (
	mysqlDupEntry          = 1062
	mysqlNoReferencedRow   = 1452
	mysqlTableAccessDenied = 1142
	mysqlDBAccessDenied    = 1044
	mysqlAccessDenied      = 1045
	mysqlSpecificAccess    = 1227
)

// classify maps driver errors onto the model sentinels, keeping the driver
// message for diagnostics.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch {
	case isDuplicate(err):
		sentinel = model.ErrDuplicate
	case isForeignKey(err):
		sentinel = model.ErrMissingMember
	case isPermission(err):
		sentinel = model.ErrPermissionDenied
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = model.ErrNetworkUnavailable
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w (%v)", op, sentinel, err)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlDupEntry
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return true
	}
	// extended result codes may be off; the message is stable
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKey(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == mysqlNoReferencedRow
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return true
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func isPermission(err error) bool {
	var me *gomysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlTableAccessDenied, mysqlDBAccessDenied, mysqlAccessDenied, mysqlSpecificAccess:
			return true
		}
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrPerm || se.Code == sqlite3.ErrAuth || se.Code == sqlite3.ErrReadonly
	}
	return strings.Contains(strings.ToLower(err.Error()), "permission denied")
}
