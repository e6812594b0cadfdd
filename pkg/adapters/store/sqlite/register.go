package sqlite

import (
	"context"

	"github.com/ekaya-inc/ekaya-batch/pkg/adapters/store"
)

func init() {
	store.Register(store.AdapterRegistration{
		Info: store.AdapterInfo{
			Type:        "sqlite",
			DisplayName: "SQLite",
			Description: "Embedded SQLite data file",
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
