package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "PostgreSQL 12+, Aurora PostgreSQL, Supabase",
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
