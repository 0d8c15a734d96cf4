package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/legis-watch/spotcheck-cli/internal/compare"
	"github.com/legis-watch/spotcheck-cli/internal/compare/bill"
	"github.com/legis-watch/spotcheck-cli/internal/model"
	"github.com/legis-watch/spotcheck-cli/internal/notify"
	"github.com/legis-watch/spotcheck-cli/internal/reconcile"
	"github.com/legis-watch/spotcheck-cli/internal/runsvc"
	"github.com/legis-watch/spotcheck-cli/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.SQLitePath
		if path == "" {
			path = "spotcheck.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initNotifier() notify.Notifier {
	if cfg.Notify.WebhookURL != "" {
		return notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.EventsPerMinute)
	}
	return notify.NewLog()
}

// initRegistry builds the comparator set. Bill comparators read the
// reference mirror tables directly, so they only register when the
// store is backed by Postgres. Calendar comparators join here once a
// calendar.Source exists for the deployment's alert feed.
func initRegistry(st store.Store) (*compare.Registry, error) {
	pg, ok := st.(*store.PostgresStore)
	if !ok {
		zap.L().Warn("comparators require the postgres driver, registry is empty",
			zap.String("driver", cfg.Store.Driver))
		return compare.NewRegistry()
	}

	tol := bill.DefaultTolerances()
	if cfg.Bill.TolerancesPath != "" {
		t, err := bill.LoadTolerances(cfg.Bill.TolerancesPath)
		if err != nil {
			return nil, eris.Wrap(err, "load bill tolerances")
		}
		tol = t
	}

	var comparators []compare.Comparator
	for _, rt := range []model.ReferenceType{model.RefDaybreakBill, model.RefScrapedBill, model.RefSenateSiteBill} {
		c, err := bill.New(pg.Pool(), rt, tol)
		if err != nil {
			return nil, eris.Wrapf(err, "build %s comparator", rt)
		}
		comparators = append(comparators, c)
	}

	return compare.NewRegistry(comparators...)
}

func initRunService(st store.Store) (*runsvc.Service, error) {
	reg, err := initRegistry(st)
	if err != nil {
		return nil, err
	}
	return runsvc.New(reg, reconcile.New(st), st, initNotifier(), cfg.Run), nil
}
