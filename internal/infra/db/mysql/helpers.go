package mysql

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const erDupEntry = 1062

// quoteIdent quotes a table name for MySQL.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
