// Package appctx bundles what every command needs: config, store, cache,
// origins and "my" accounts. Tests build isolated instances.
package appctx

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/deemkeen/andstatus/cache"
	"github.com/deemkeen/andstatus/checker"
	"github.com/deemkeen/andstatus/db"
	"github.com/deemkeen/andstatus/domain"
	"github.com/deemkeen/andstatus/executor"
	"github.com/deemkeen/andstatus/ingest"
	"github.com/deemkeen/andstatus/util"
)

type Context struct {
	Conf  *util.AppConfig
	Store *db.DB
	Cache *cache.Cache
	Pools *executor.Pools
	// Origins by name
	Origins  map[string]*domain.Origin
	Accounts []*domain.Actor
	log      *log.Logger
}

// New opens the configured database.
func New(conf *util.AppConfig) (*Context, error) {
	store, err := db.Open(conf.Conf.DbPath, conf.Conf.StoreRetries)
	if err != nil {
		return nil, err
	}
	return NewWithStore(conf, store), nil
}

func NewWithStore(conf *util.AppConfig, store *db.DB) *Context {
	return &Context{
		Conf:    conf,
		Store:   store,
		Cache:   cache.New(store),
		Pools:   executor.New(conf.Conf.SyncWorkers),
		Origins: make(map[string]*domain.Origin),
		log:     util.Logger("Context"),
	}
}

// Init stores the configured origins and accounts, marks the users of the
// accounts as mine and loads the cache.
func (c *Context) Init(ctx context.Context) error {
	for _, oc := range c.Conf.Origins {
		o := &domain.Origin{Name: oc.Name, Type: domain.OriginType(oc.Type), Host: oc.Host}
		if !o.Type.IsValid() {
			return fmt.Errorf("origin %s: unknown type %q", oc.Name, oc.Type)
		}
		if err := c.Store.UpsertOrigin(ctx, o); err != nil {
			return err
		}
		c.Origins[o.Name] = o
	}

	c.Accounts = c.Accounts[:0]
	for _, ac := range c.Conf.Accounts {
		a, err := c.initAccount(ctx, ac)
		if err != nil {
			return fmt.Errorf("account %s@%s: %w", ac.Username, ac.Origin, err)
		}
		c.Accounts = append(c.Accounts, a)
	}

	if err := c.Cache.Reload(ctx); err != nil {
		return err
	}
	c.log.Info("Context initialized", "origins", len(c.Origins), "accounts", len(c.Accounts))
	return nil
}

func (c *Context) initAccount(ctx context.Context, ac util.AccountConf) (*domain.Actor, error) {
	o, err := c.Origin(ac.Origin)
	if err != nil {
		return nil, err
	}
	in := &domain.Actor{OriginId: o.Id, Oid: ac.Oid, Username: ac.Username, GroupType: domain.GroupNotAGroup}
	in.WebFingerId = in.NormalizedWebFingerId(o.Host)

	var a *domain.Actor
	err = c.Store.InTransaction(ctx, func(tx *db.Tx) error {
		var err error
		if a, _, err = tx.SaveActor(ctx, in); err != nil {
			return err
		}
		if a.UserId == 0 {
			_, err = tx.CreateUserFor(ctx, a, domain.True)
			return err
		}
		u, err := tx.UserById(ctx, a.UserId)
		if errors.Is(err, db.ErrNotFound) {
			_, err = tx.CreateUserFor(ctx, a, domain.True)
			return err
		}
		if err != nil || u.IsMyUser.IsTrue() {
			return err
		}
		u.IsMyUser = domain.True
		return tx.UpdateUser(ctx, u)
	})
	return a, err
}

func (c *Context) Origin(name string) (*domain.Origin, error) {
	o, ok := c.Origins[name]
	if !ok {
		return nil, fmt.Errorf("origin %q is not configured", name)
	}
	return o, nil
}

func (c *Context) Checker() *checker.Checker {
	return checker.New(c.Store, c.Cache, c.Conf.Conf.MaxRecursion)
}

func (c *Context) Updater() *ingest.Updater {
	return ingest.NewUpdater(c.Store, c.Cache)
}

func (c *Context) Close() error {
	c.Pools.Close()
	return c.Store.Close()
}
