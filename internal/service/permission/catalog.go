package permission

import (
	"context"

	"github.com/safeflow/procedure-api/internal/model"
	"github.com/safeflow/procedure-api/internal/repository"
)

// Catalog is the static permission table grouped by module. It is loaded
// once at startup; catalog entries are immutable so there is nothing to
// refresh. Effective permissions are never answered from here.
type Catalog struct {
	byCode   map[string]*model.Permission
	byModule map[string][]*model.Permission
}

func LoadCatalog(ctx context.Context, repo repository.RBACRepository) (*Catalog, error) {
	permissions, err := repo.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}

	c := &Catalog{
		byCode:   make(map[string]*model.Permission, len(permissions)),
		byModule: make(map[string][]*model.Permission),
	}
	for _, p := range permissions {
		c.byCode[p.Code] = p
		c.byModule[p.Module] = append(c.byModule[p.Module], p)
	}
	return c, nil
}

// Lookup returns the catalog entry for a code.
func (c *Catalog) Lookup(code string) (*model.Permission, bool) {
	p, ok := c.byCode[code]
	return p, ok
}

// Module returns all permissions declared under a module.
func (c *Catalog) Module(module string) []*model.Permission {
	return c.byModule[module]
}

// All returns every catalog entry grouped by module.
func (c *Catalog) All() map[string][]*model.Permission {
	return c.byModule
}
