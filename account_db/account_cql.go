package account_db

import (
	"context"
	"fmt"
	"strings"

	"github.com/indexdata/cql-go/cql"
	"github.com/indexdata/cql-go/pgcql"
)

func handleUsageStatsQuery(cqlString string, noBaseArgs int) (pgcql.Query, error) {
	def := pgcql.NewPgDefinition()

	f := &pgcql.FieldString{}
	f.WithExact().SetColumn("instance")
	def.AddField("instance", f)

	f = &pgcql.FieldString{}
	f.WithExact().SetColumn("year")
	def.AddField("year", f)

	f = &pgcql.FieldString{}
	f.WithExact().SetColumn("month")
	def.AddField("month", f)

	var parser cql.Parser
	query, err := parser.Parse(cqlString)
	if err != nil {
		return nil, err
	}
	return def.Parse(query, noBaseArgs+1)
}

func (q *Queries) ListUsageStatsCql(ctx context.Context, db DBTX, arg ListUsageStatsParams, cqlString *string) ([]UsageStat, error) {
	if cqlString == nil {
		return q.ListUsageStats(ctx, db, arg)
	}
	noBaseArgs := 2 // two base arguments: limit and offset
	res, err := handleUsageStatsQuery(*cqlString, noBaseArgs)
	if err != nil {
		return nil, err
	}
	whereClause := ""
	if res.GetWhereClause() != "" {
		whereClause = "WHERE " + res.GetWhereClause() + " "
	}
	orgSql := listUsageStats
	pos := strings.Index(orgSql, "ORDER BY")
	if pos == -1 {
		return nil, fmt.Errorf("CQL query must contain an ORDER BY clause")
	}
	sql := orgSql[:pos] + whereClause + orgSql[pos:]
	sqlArguments := make([]interface{}, 0, noBaseArgs+len(res.GetQueryArguments()))
	sqlArguments = append(sqlArguments, arg.Limit, arg.Offset)
	sqlArguments = append(sqlArguments, res.GetQueryArguments()...)
	rows, err := db.Query(ctx, sql, sqlArguments...)
	if err != nil {
		return nil, fmt.Errorf("failed to convert CQL to SQL: %w", err)
	}
	defer rows.Close()
	var items []UsageStat
	for rows.Next() {
		i, err := scanUsageStat(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
