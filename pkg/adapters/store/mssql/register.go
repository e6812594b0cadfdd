package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Type:        "sqlserver",
			DisplayName: "Microsoft SQL Server",
			Description: "SQL Server 2016+ and Azure SQL Database with SQL authentication",
		},
		Factory: func(ctx context.Context, cfg store.Config) (store.Store, error) {
			c, err := FromStoreConfig(cfg)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, c)
		},
	})
}
